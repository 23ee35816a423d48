package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siteaudit/internal/hash/sha256"
)

func TestPubSubSinkPublishesSummary(t *testing.T) {
	t.Parallel()
	var got *pubsub.Message
	sink, err := newPubSubSink(func(_ context.Context, msg *pubsub.Message) (string, error) {
		got = msg
		return "msg-1", nil
	}, sha256.New())
	require.NoError(t, err)

	run := sampleRun(t)
	run.Locations = []string{"reports/example.com/x.json"}
	loc, err := sink.Save(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, "pubsub:msg-1", loc)
	require.NotNil(t, got)
	assert.Equal(t, "WARN", got.Attributes["overall"])

	var summary Summary
	require.NoError(t, json.Unmarshal(got.Data, &summary))
	want, err := sha256.New().Hash(run.Payload)
	require.NoError(t, err)
	assert.Equal(t, want, summary.ReportSHA256)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 1, summary.ExitCode)
	assert.Equal(t, "2026-10-18T09:05:42Z", summary.StartedAt)
	assert.Equal(t, []string{"reports/example.com/x.json"}, summary.Locations)
	assert.Equal(t, 1, summary.Counts["SKIP"])
}

func TestPubSubSinkPublishError(t *testing.T) {
	t.Parallel()
	sink, err := newPubSubSink(func(context.Context, *pubsub.Message) (string, error) {
		return "", errors.New("permission denied")
	}, sha256.New())
	require.NoError(t, err)

	_, err = sink.Save(context.Background(), sampleRun(t))
	assert.ErrorContains(t, err, "publish message")
}

func TestNewPubSubSinkRequiresTopic(t *testing.T) {
	t.Parallel()
	_, err := NewPubSubSink(nil, sha256.New())
	assert.Error(t, err)
	_, err = newPubSubSink(nil, nil)
	assert.Error(t, err)
}
