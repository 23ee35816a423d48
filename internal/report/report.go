// Package report encodes audit results and persists them to the configured
// sinks.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/urlnorm"
)

// Run is one finished audit.
type Run struct {
	RunID     string
	Host      string
	Root      string
	StartedAt time.Time
	Overall   audit.Status
	ExitCode  int
	Results   []audit.Result
	// Payload is the encoded result array shared by every sink.
	Payload []byte
	// Locations lists where earlier sinks stored the report.
	Locations []string
}

// NewRun aggregates results and encodes the payload.
func NewRun(runID, root string, startedAt time.Time, results []audit.Result, pretty bool) (Run, error) {
	payload, err := Encode(results, pretty)
	if err != nil {
		return Run{}, err
	}
	return Run{
		RunID:     runID,
		Host:      urlnorm.Host(root),
		Root:      root,
		StartedAt: startedAt,
		Overall:   audit.Overall(results),
		ExitCode:  audit.ExitCode(results),
		Results:   results,
		Payload:   payload,
	}, nil
}

// Encode renders results as a JSON array. HTML characters are not escaped
// so URLs and snippets stay readable.
func Encode(results []audit.Result, pretty bool) ([]byte, error) {
	if results == nil {
		results = []audit.Result{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(results); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return buf.Bytes(), nil
}

// ObjectName is the file name of a report: <host>/<host>_<YYYY-MM-DD_HH-MM>.json.
func ObjectName(host string, startedAt time.Time) string {
	if host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%s_%s.json", host, host, startedAt.Format("2006-01-02_15-04"))
}

// Sink persists a run and returns where it went.
type Sink interface {
	Save(ctx context.Context, run Run) (string, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, run Run) (string, error)

// Save implements Sink.
func (f SinkFunc) Save(ctx context.Context, run Run) (string, error) {
	return f(ctx, run)
}

// Multi saves to every sink in order. Locations from earlier sinks are
// visible to later ones; a failing sink does not stop the rest.
type Multi []Sink

// SaveAll returns the locations written and the joined sink errors.
func (m Multi) SaveAll(ctx context.Context, run Run) ([]string, error) {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		loc, err := s.Save(ctx, run)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if loc != "" {
			run.Locations = append(run.Locations, loc)
		}
	}
	return run.Locations, errors.Join(errs...)
}
