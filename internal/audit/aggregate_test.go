package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func results(statuses ...Status) []Result {
	out := make([]Result, len(statuses))
	for i, s := range statuses {
		out[i] = Result{Name: string(s), Status: s}
	}
	return out
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		statuses []Status
		want     int
		overall  Status
	}{
		{"empty", nil, 0, StatusPass},
		{"all pass", []Status{StatusPass, StatusPass}, 0, StatusPass},
		{"pass and skip", []Status{StatusPass, StatusSkip}, 0, StatusPass},
		{"all skip", []Status{StatusSkip, StatusSkip}, 0, StatusPass},
		{"warn", []Status{StatusPass, StatusWarn, StatusSkip}, 1, StatusWarn},
		{"fail beats warn", []Status{StatusWarn, StatusFail, StatusPass}, 2, StatusFail},
		{"error anywhere", []Status{StatusError, StatusPass, StatusFail}, 3, StatusError},
		{"error last", []Status{StatusPass, StatusWarn, StatusError}, 3, StatusError},
		{"unknown ignored", []Status{"MAYBE", StatusWarn}, 1, StatusWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rs := results(tt.statuses...)
			assert.Equal(t, tt.want, ExitCode(rs))
			assert.Equal(t, tt.overall, Overall(rs))
		})
	}
}

func TestExitCodeMonotonic(t *testing.T) {
	t.Parallel()

	all := []Status{StatusPass, StatusWarn, StatusFail, StatusError, StatusSkip, "OTHER"}
	base := results(StatusPass, StatusWarn)
	for _, extra := range all {
		grown := append(append([]Result(nil), base...), Result{Status: extra})
		assert.GreaterOrEqual(t, ExitCode(grown), ExitCode(base), "adding %s", extra)
	}
}

func TestSkipDoesNotAffectExitCode(t *testing.T) {
	t.Parallel()

	rs := []Result{Skip("blog_author", "pages.blog_post"), NewResult("meta", StatusPass)}
	assert.Equal(t, 0, ExitCode(rs))
}

func TestCountsAndWorst(t *testing.T) {
	t.Parallel()

	c := Counts(results(StatusPass, StatusPass, StatusSkip, StatusError))
	assert.Equal(t, 2, c[StatusPass])
	assert.Equal(t, 1, c[StatusSkip])
	assert.Equal(t, 1, c[StatusError])

	assert.Equal(t, StatusFail, Worst(StatusWarn, StatusFail, StatusSkip))
	assert.Equal(t, StatusSkip, Worst(StatusSkip))
	assert.Equal(t, StatusSkip, Worst())
	assert.Equal(t, StatusPass, Worst(StatusPass))
}

func TestSeverity(t *testing.T) {
	t.Parallel()

	rank, ok := Severity(StatusFail)
	assert.True(t, ok)
	assert.Equal(t, 2, rank)
	_, ok = Severity(StatusSkip)
	assert.False(t, ok)
}
