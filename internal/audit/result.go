package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the verdict of a single check.
type Status string

// Known statuses.
const (
	StatusPass  Status = "PASS"
	StatusWarn  Status = "WARN"
	StatusFail  Status = "FAIL"
	StatusError Status = "ERROR"
	StatusSkip  Status = "SKIP"
)

// ErrConfig marks a check that cannot run because required configuration is
// missing. Checks return Skip(...) instead of failing.
var ErrConfig = errors.New("missing configuration")

// Result is the envelope every check produces. Metrics and Samples are open
// maps owned by the individual check.
type Result struct {
	Name    string
	Status  Status
	Metrics map[string]any
	Samples map[string]any
	FixHint string
	Error   string
}

// NewResult returns a Result with initialized maps.
func NewResult(name string, status Status) Result {
	return Result{
		Name:    name,
		Status:  status,
		Metrics: map[string]any{},
		Samples: map[string]any{},
	}
}

// Skip builds a SKIP result explaining which setting is missing.
func Skip(name, setting string) Result {
	r := NewResult(name, StatusSkip)
	r.Metrics["reason"] = fmt.Errorf("%w: %s", ErrConfig, setting).Error()
	r.FixHint = fmt.Sprintf("Set %s to enable this check.", setting)
	return r
}

// Failed builds an ERROR result carrying err.
func Failed(name string, err error) Result {
	r := NewResult(name, StatusError)
	if err != nil {
		r.Error = err.Error()
	}
	if r.Error == "" {
		r.Error = "unknown error"
	}
	return r
}

type resultJSON struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Metrics map[string]any `json:"metrics"`
	Samples map[string]any `json:"samples"`
	FixHint string         `json:"fix_hint"`
	Error   string         `json:"error,omitempty"`
}

// MarshalJSON always emits metrics and samples as objects.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Name:    r.Name,
		Status:  r.Status,
		Metrics: r.Metrics,
		Samples: r.Samples,
		FixHint: r.FixHint,
		Error:   r.Error,
	}
	if out.Metrics == nil {
		out.Metrics = map[string]any{}
	}
	if out.Samples == nil {
		out.Samples = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("marshal result %s: %w", r.Name, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON mirrors MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	*r = Result{
		Name:    in.Name,
		Status:  in.Status,
		Metrics: in.Metrics,
		Samples: in.Samples,
		FixHint: in.FixHint,
		Error:   in.Error,
	}
	return nil
}
