package app

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is one of the operations the command surface can dispatch.
type Action int

const (
	ActionSearch Action = iota + 1
	ActionSites
	ActionCacheSites
	ActionSetDefault
	ActionRevealIcon
	ActionRefresh
)

var actionNames = map[Action]string{
	ActionSearch:     "search",
	ActionSites:      "sites",
	ActionCacheSites: "cache-sites",
	ActionSetDefault: "set-default",
	ActionRevealIcon: "reveal-icon",
	ActionRefresh:    "refresh",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Interactive reports whether the action answers the picker host with a
// result list.
func (a Action) Interactive() bool {
	return a == ActionSearch || a == ActionSites
}

// ParseAction maps a command name to its Action.
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Job kinds understood by the refresh worker.
const (
	KindSites  = "sites"
	KindSearch = "search"
)

// JobSpec describes a background refresh in a form that survives being
// passed to a worker process.
type JobSpec struct {
	Kind  string   `json:"kind"`
	Site  string   `json:"site,omitempty"`
	Text  string   `json:"text,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// Encode returns the spec's wire form.
func (s JobSpec) Encode() []byte {
	data, _ := json.Marshal(s)
	return data
}

// DecodeJobSpec parses and validates a job spec.
func DecodeJobSpec(data []byte) (JobSpec, error) {
	var s JobSpec
	if err := json.Unmarshal(data, &s); err != nil {
		return JobSpec{}, fmt.Errorf("decode job spec: %w", err)
	}
	switch s.Kind {
	case KindSites:
	case KindSearch:
		if s.Site == "" {
			return JobSpec{}, fmt.Errorf("search job spec has no site")
		}
	default:
		return JobSpec{}, fmt.Errorf("unknown job kind %q", s.Kind)
	}
	return s, nil
}
