package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryObject struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (m *memoryObject) Close() error {
	m.closed = true
	return m.closeErr
}

func TestGCSSinkSave(t *testing.T) {
	t.Parallel()
	obj := &memoryObject{}
	var gotObject string
	sink, err := newGCSSink("audits", "/reports/", func(_ context.Context, object string) io.WriteCloser {
		gotObject = object
		return obj
	})
	require.NoError(t, err)
	run := sampleRun(t)

	loc, err := sink.Save(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, "reports/example.com/example.com_2026-10-18_09-05.json", gotObject)
	assert.Equal(t, "gs://audits/reports/example.com/example.com_2026-10-18_09-05.json", loc)
	assert.Equal(t, run.Payload, obj.Bytes())
	assert.True(t, obj.closed)
}

func TestGCSSinkCloseError(t *testing.T) {
	t.Parallel()
	obj := &memoryObject{closeErr: errors.New("quota")}
	sink, err := newGCSSink("audits", "", func(context.Context, string) io.WriteCloser { return obj })
	require.NoError(t, err)

	_, err = sink.Save(context.Background(), sampleRun(t))
	assert.ErrorContains(t, err, "close writer")
}

func TestGCSSinkRequiresBucket(t *testing.T) {
	t.Parallel()
	_, err := newGCSSink("", "", nil)
	assert.Error(t, err)
	_, err = NewGCSSink(nil, "audits", "")
	assert.Error(t, err)
}
