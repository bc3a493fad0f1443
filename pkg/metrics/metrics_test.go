package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Counters(t *testing.T) {
	m := NewManager(WithNamespace("test"))

	m.RowsWritten("scores", 10)
	m.RowsWritten("scores", 5)
	m.BatchFailed("players")
	m.BatchDropped("players")
	m.AccuracyOverflow()
	m.OracleNaN()
	m.RowSkipped("normalize")
	m.ScoresNormalized(3)

	assert.Equal(t, 15.0, testutil.ToFloat64(m.rowsWritten.WithLabelValues("scores")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchFailures.WithLabelValues("players")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchDropped.WithLabelValues("players")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.accuracyOverflow))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oracleNaN))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skippedRows.WithLabelValues("normalize")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.scoresNormalized))
}

func TestManager_JobFinished(t *testing.T) {
	m := NewManager()

	m.JobFinished("refresh_ranks", 2*time.Second, nil)
	m.JobFinished("refresh_ranks", time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("refresh_ranks", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("refresh_ranks", "failure")))
	assert.Greater(t, testutil.ToFloat64(m.jobLastRun.WithLabelValues("refresh_ranks")), 0.0)
}

func TestManager_DisabledAndNil(t *testing.T) {
	m := NewManager(WithEnabled(false))
	m.RowsWritten("scores", 10)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.rowsWritten.WithLabelValues("scores")))

	var nilManager *Manager
	assert.NotPanics(t, func() {
		nilManager.RowsWritten("scores", 1)
		nilManager.JobFinished("x", time.Second, nil)
	})
}

func TestManager_Handler(t *testing.T) {
	m := NewManager()
	m.RowsWritten("scores", 7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ppcron_pipeline_rows_written_total{table="scores"} 7`)
}
