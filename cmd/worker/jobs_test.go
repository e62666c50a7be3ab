package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	pkgmodels "github.com/athebyme/gomarket-platform/catalog-sync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	err  error
	jobs []pkgmodels.DownloadJob
}

func (f *fakeRunner) RunDownloadJob(_ context.Context, job pkgmodels.DownloadJob) (*pkgmodels.JobResult, error) {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return nil, f.err
	}
	return &pkgmodels.JobResult{JobID: job.ID, Kind: job.Kind, Bytes: 10}, nil
}

func jobMessage(t *testing.T, kind pkgmodels.JobKind) *interfaces.Message {
	t.Helper()
	raw, err := json.Marshal(pkgmodels.DownloadJob{ID: "job-1", Kind: kind})
	require.NoError(t, err)
	return &interfaces.Message{ID: "m1", Topic: "catalog-sync-jobs", Value: raw}
}

func TestJobHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "success"},
		{name: "busy is acknowledged", err: utils.ErrJobBusy},
		{name: "unknown kind is acknowledged", err: utils.ErrUnknownJobKind},
		{name: "failed download is acknowledged", err: utils.ErrRemoteTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.err}
			handler := newJobHandler(runner, logger.NewNopLogger())

			err := handler(context.Background(), jobMessage(t, pkgmodels.JobNomenclature))

			assert.NoError(t, err)
			require.Len(t, runner.jobs, 1)
			assert.Equal(t, pkgmodels.JobNomenclature, runner.jobs[0].Kind)
		})
	}
}

func TestJobHandler_CanceledIsRedelivered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{err: context.Canceled}

	err := newJobHandler(runner, logger.NewNopLogger())(ctx, jobMessage(t, pkgmodels.JobTranslations))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestJobHandler_InvalidPayloadDropped(t *testing.T) {
	runner := &fakeRunner{}
	err := newJobHandler(runner, logger.NewNopLogger())(context.Background(),
		&interfaces.Message{Topic: "catalog-sync-jobs", Value: []byte("{oops")})

	assert.NoError(t, err)
	assert.Empty(t, runner.jobs)
}

type fakeBatchRunner struct {
	calls int
	err   error
}

func (f *fakeBatchRunner) RunBatch(_ context.Context, batchSize int) (*models.BatchState, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.BatchState{RunID: "r1", BatchSize: batchSize, ProcessedCount: batchSize}, nil
}

func TestRunScheduledBatch(t *testing.T) {
	for _, err := range []error{nil, utils.ErrBatchInProgress, utils.ErrBatchBusy, errors.New("boom")} {
		runner := &fakeBatchRunner{err: err}
		assert.NotPanics(t, func() {
			runScheduledBatch(context.Background(), runner, 5, logger.NewNopLogger())
		})
		assert.Equal(t, 1, runner.calls)
	}
}

func TestEventHandler(t *testing.T) {
	raw, err := json.Marshal(pkgmodels.ProductEvent{Type: "product_created", SKU: "LU1"})
	require.NoError(t, err)
	handler := newEventHandler(logger.NewNopLogger())

	assert.NoError(t, handler(context.Background(), &interfaces.Message{Topic: "catalog-sync-events", Value: raw}))
	assert.NoError(t, handler(context.Background(), &interfaces.Message{Topic: "catalog-sync-events", Value: []byte("x")}))
}
