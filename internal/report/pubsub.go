package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/siteaudit/internal/audit"
)

// Hasher digests the encoded report.
type Hasher interface {
	Hash(data []byte) (string, error)
}

type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Summary is the message published after a run.
type Summary struct {
	RunID        string               `json:"run_id"`
	Host         string               `json:"host"`
	Root         string               `json:"root"`
	StartedAt    string               `json:"started_at"`
	Overall      audit.Status         `json:"overall"`
	ExitCode     int                  `json:"exit_code"`
	Counts       map[audit.Status]int `json:"counts"`
	ReportSHA256 string               `json:"report_sha256"`
	Locations    []string             `json:"locations"`
}

// PubSubSink publishes a run summary to a topic.
type PubSubSink struct {
	publish publishFunc
	hasher  Hasher
}

// NewPubSubSink publishes through topic.
func NewPubSubSink(topic *pubsub.Topic, hasher Hasher) (*PubSubSink, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return newPubSubSink(func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return topic.Publish(ctx, msg).Get(ctx)
	}, hasher)
}

func newPubSubSink(publish publishFunc, hasher Hasher) (*PubSubSink, error) {
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	return &PubSubSink{publish: publish, hasher: hasher}, nil
}

// NewSummary builds the notification payload for run.
func NewSummary(run Run, hasher Hasher) (Summary, error) {
	digest, err := hasher.Hash(run.Payload)
	if err != nil {
		return Summary{}, fmt.Errorf("hash report: %w", err)
	}
	locations := run.Locations
	if locations == nil {
		locations = []string{}
	}
	return Summary{
		RunID:        run.RunID,
		Host:         run.Host,
		Root:         run.Root,
		StartedAt:    run.StartedAt.UTC().Format(time.RFC3339),
		Overall:      run.Overall,
		ExitCode:     run.ExitCode,
		Counts:       audit.Counts(run.Results),
		ReportSHA256: digest,
		Locations:    locations,
	}, nil
}

// Save publishes the summary and returns the message ID.
func (s *PubSubSink) Save(ctx context.Context, run Run) (string, error) {
	summary, err := NewSummary(run, s.hasher)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id":  run.RunID,
			"host":    run.Host,
			"overall": string(run.Overall),
		},
	}
	id, err := s.publish(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return "pubsub:" + id, nil
}
