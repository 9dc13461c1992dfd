// Package present renders result lists for the picker host (script-filter
// JSON) or for a terminal.
package present

import (
	"errors"

	"github.com/pario-ai/sxsearch/pkg/errs"
)

// Icon points at an image file.
type Icon struct {
	Path string `json:"path"`
}

// Text holds the alternative texts of an item.
type Text struct {
	Copy      string `json:"copy,omitempty"`
	LargeType string `json:"largetype,omitempty"`
}

// Mod is an alternate action shown while a modifier key is held.
type Mod struct {
	Subtitle string            `json:"subtitle,omitempty"`
	Arg      string            `json:"arg,omitempty"`
	Valid    bool              `json:"valid"`
	Vars     map[string]string `json:"variables,omitempty"`
}

// Item is one row of feedback.
type Item struct {
	UID      string            `json:"uid,omitempty"`
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle,omitempty"`
	Arg      string            `json:"arg,omitempty"`
	Icon     *Icon             `json:"icon,omitempty"`
	Valid    bool              `json:"valid"`
	Text     *Text             `json:"text,omitempty"`
	Vars     map[string]string `json:"variables,omitempty"`
	Mods     map[string]Mod    `json:"mods,omitempty"`
}

// SetVar sets an item variable.
func (it *Item) SetVar(k, v string) {
	if it.Vars == nil {
		it.Vars = make(map[string]string)
	}
	it.Vars[k] = v
}

// AddMod attaches an alternate action for modifier key (cmd, alt, ...).
func (it *Item) AddMod(key string, m Mod) {
	if it.Mods == nil {
		it.Mods = make(map[string]Mod)
	}
	it.Mods[key] = m
}

// Feedback is a full response: items plus an optional rerun interval in
// seconds asking the host to call again.
type Feedback struct {
	Rerun float64 `json:"rerun,omitempty"`
	Items []Item  `json:"items"`
}

// Add appends items.
func (f *Feedback) Add(items ...Item) {
	f.Items = append(f.Items, items...)
}

// SetRerun asks the host to call again after secs. The shortest interval
// requested wins.
func (f *Feedback) SetRerun(secs float64) {
	if secs <= 0 {
		return
	}
	if f.Rerun == 0 || secs < f.Rerun {
		f.Rerun = secs
	}
}

// WarnEmpty adds a single non-actionable item when there are no items.
func (f *Feedback) WarnEmpty(title, subtitle string) {
	if len(f.Items) == 0 {
		f.Add(Placeholder(title, subtitle))
	}
}

// Placeholder is a non-actionable informational item.
func Placeholder(title, subtitle string) Item {
	return Item{Title: title, Subtitle: subtitle, Valid: false}
}

// ErrorItem renders err as a non-actionable item.
func ErrorItem(err error) Item {
	title := "Error"
	switch errs.KindOf(err) {
	case errs.KindNetwork:
		title = "Could Not Reach Stack Exchange"
	case errs.KindAPI:
		title = "Stack Exchange API Error"
		var apiErr *errs.APIError
		if errors.As(err, &apiErr) && apiErr.QuotaExhausted() {
			title = "API Quota Exhausted"
		}
	case errs.KindIO:
		title = "Cache Error"
	case errs.KindNotFound:
		title = "Not Found"
	}
	return Item{Title: title, Subtitle: err.Error(), Valid: false}
}
