package job_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenkindex/features/job"
	"tenkindex/internal/testutils"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()

	jobRepo := job.NewPostgresRepo(s.DB)
	ctx := context.Background()

	j1 := &job.Job{
		Ticker:  "ACME",
		Handler: "ingest-worker",
		Payload: json.RawMessage(`{"path": "/data/acme.pdf"}`),
		Error:   "error 1",
	}
	require.NoError(t, jobRepo.Save(ctx, j1))

	// created_at ordering needs distinct timestamps
	time.Sleep(100 * time.Millisecond)

	j2 := &job.Job{
		Ticker:  "BETA",
		Handler: "ingest-worker",
		Payload: json.RawMessage(`{"path": "/data/beta.pdf"}`),
		Error:   "error 2",
	}
	require.NoError(t, jobRepo.Save(ctx, j2))

	jobs, err := jobRepo.List(ctx, job.ListOptions{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, j2.ID, jobs[0].ID, "Newest job should be first")
	assert.Equal(t, j1.ID, jobs[1].ID, "Oldest job should be last")

	acme, err := jobRepo.List(ctx, job.ListOptions{Ticker: "ACME"})
	require.NoError(t, err)
	require.Len(t, acme, 1)
	assert.JSONEq(t, `{"path": "/data/acme.pdf"}`, string(acme[0].Payload))

	// Same file failing again replaces its row.
	again := &job.Job{
		Ticker:  "ACME",
		Handler: "ingest-worker",
		Payload: json.RawMessage(`{"path": "/data/acme.pdf"}`),
		Error:   "error 3",
	}
	require.NoError(t, jobRepo.Save(ctx, again))
	assert.Equal(t, 1, again.Retries)

	_, err = jobRepo.Get(ctx, j1.ID)
	assert.ErrorIs(t, err, job.ErrNotFound)

	got, err := jobRepo.Get(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, "error 3", got.Error)

	require.NoError(t, jobRepo.Delete(ctx, again.ID))
	assert.ErrorIs(t, jobRepo.Delete(ctx, again.ID), job.ErrNotFound)

	count, err := jobRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
