package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// DefaultSeed is the determinism seed sent when the caller does not pick one.
const DefaultSeed int64 = 42

// CallOptions are per-call knobs. Backends opt in to the ones they support
// and ignore the rest.
type CallOptions struct {
	// Seed must be an integer (any Go integer kind or an integral
	// json.Number). nil means DefaultSeed.
	Seed interface{} `json:"seed,omitempty"`

	// JSONMode asks the backend for a single JSON object. nil means the
	// backend default (on for every JSON-capable adapter).
	JSONMode *bool `json:"json_mode,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// SeedValue returns the effective integer seed or a ValidationError when the
// configured seed is not an integer.
func (o CallOptions) SeedValue() (int64, error) {
	switch v := o.Seed.(type) {
	case nil:
		return DefaultSeed, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, seedError(v)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, seedError(v)
		}
		return int64(v), nil
	case json.Number:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return 0, seedError(v)
		}
		return n, nil
	default:
		return 0, seedError(v)
	}
}

// JSONModeEnabled reports whether JSON-object output should be requested.
func (o CallOptions) JSONModeEnabled() bool {
	return o.JSONMode == nil || *o.JSONMode
}

// Validate checks every option without touching the network.
func (o CallOptions) Validate() error {
	if _, err := o.SeedValue(); err != nil {
		return err
	}
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return &ValidationError{Field: "temperature", Reason: fmt.Sprintf("must be within [0, 2], got %v", *o.Temperature)}
	}
	if o.MaxTokens < 0 {
		return &ValidationError{Field: "max_tokens", Reason: "must not be negative"}
	}
	return nil
}

func seedError(v interface{}) error {
	return &ValidationError{Field: "seed", Reason: fmt.Sprintf("seed must be an integer, got %T (%v)", v, v)}
}
