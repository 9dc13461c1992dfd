package refresh

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/sxsearch/pkg/errs"
)

// Value is a decoded Result.
type Value[T any] struct {
	Data       T
	State      State
	Age        time.Duration
	Refreshing bool
}

// WasFresh reports whether the value did not need refreshing.
func (v Value[T]) WasFresh() bool {
	return v.State != StateStale
}

// Fetch is Get with the payload decoded into T. A cached payload that no
// longer decodes is treated as absent.
func Fetch[T any](ctx context.Context, c *Coordinator, maxAge time.Duration, job Job) (Value[T], error) {
	r, err := c.get(ctx, maxAge, job, func(payload []byte) error {
		var v T
		return json.Unmarshal(payload, &v)
	})
	if err != nil {
		return Value[T]{}, err
	}
	return decode[T](r)
}

// PeekValue is Peek with the payload decoded into T.
func PeekValue[T any](ctx context.Context, c *Coordinator, key string, maxAge time.Duration) (Value[T], error) {
	r, err := c.Peek(ctx, key, maxAge)
	if err != nil {
		return Value[T]{}, err
	}
	return decode[T](r)
}

func decode[T any](r Result) (Value[T], error) {
	v := Value[T]{State: r.State, Age: r.Age, Refreshing: r.Refreshing}
	if err := json.Unmarshal(r.Entry.Payload, &v.Data); err != nil {
		return v, errs.IO("decode "+r.Entry.Key, err)
	}
	return v, nil
}
