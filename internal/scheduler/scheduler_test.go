package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stocktrader/internal/metrics"
)

type countingJob struct {
	name  string
	err   error
	runs  int32
	block chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	atomic.AddInt32(&j.runs, 1)
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(nil, zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{name: "x"})
	assert.Error(t, err)
}

func TestAddJob_ValidSchedules(t *testing.T) {
	s := New(nil, zerolog.Nop())
	for _, spec := range []string{"0 3 * * *", "*/15 * * * *", "@hourly", "@every 30s"} {
		require.NoError(t, s.AddJob(spec, &countingJob{name: spec}), spec)
	}
}

func TestRunNow_RecordsMetrics(t *testing.T) {
	m := metrics.NewRegistry()
	s := New(m, zerolog.Nop())

	ok := &countingJob{name: "ok_job"}
	bad := &countingJob{name: "bad_job", err: errors.New("boom")}

	require.NoError(t, s.RunNow(ok))
	require.Error(t, s.RunNow(bad))

	assert.Equal(t, int32(1), atomic.LoadInt32(&ok.runs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MaintenanceRuns.WithLabelValues("ok_job", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MaintenanceRuns.WithLabelValues("bad_job", "error")))
}

func TestExecute_SkipsOverlappingRuns(t *testing.T) {
	s := New(nil, zerolog.Nop())
	job := &countingJob{name: "slow", block: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		_ = s.RunNow(job)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.runs))

	close(job.block)
	<-done
}

func TestStartStop(t *testing.T) {
	s := New(nil, zerolog.Nop())
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	s.Stop()
}
