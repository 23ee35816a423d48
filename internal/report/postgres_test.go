package report

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSinkSave(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewPostgresSinkWithPool(mock, "", "")
	require.NoError(t, err)
	run := sampleRun(t)

	mock.ExpectExec("INSERT INTO audit_runs").
		WithArgs("run-1", "example.com", "https://example.com/", started, "WARN", 1, 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO audit_results").
		WithArgs("run-1", 1, "meta_tags_coverage", "PASS", []byte(`{}`), pgxmock.AnyArg(), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO audit_results").
		WithArgs("run-1", 2, "headings_h1", "WARN", []byte(`{}`), []byte(`{}`), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO audit_results").
		WithArgs("run-1", 3, "blog_author", "SKIP", pgxmock.AnyArg(), []byte(`{}`), "Set pages.blog_post to enable this check.", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	loc, err := sink.Save(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, "postgres://audit_results/run-1", loc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkRunInsertFails(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewPostgresSinkWithPool(mock, "runs", "results")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	_, err = sink.Save(context.Background(), sampleRun(t))
	require.ErrorContains(t, err, "insert run")
	assert.ErrorContains(t, err, "db down")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresSinkWithPool(nil, "", "")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresSinkWithPool(mock, "runs; DROP TABLE x", "")
	assert.Error(t, err)

	sink, err := NewPostgresSinkWithPool(mock, "", "")
	require.NoError(t, err)
	run := sampleRun(t)
	run.RunID = ""
	_, err = sink.Save(context.Background(), run)
	assert.ErrorContains(t, err, "run id is required")

	_, err = NewPostgresSink(context.Background(), PostgresConfig{})
	assert.Error(t, err)
}
