//go:build !integration

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"elverra-membership/internal/infra/logging"
)

type countingJob struct {
	name    string
	runs    int32
	err     error
	sawID   atomic.Value
	block   chan struct{}
	started chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) RunOnce(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	j.sawID.Store(logging.TraceID(ctx))
	if j.started != nil {
		select {
		case j.started <- struct{}{}:
		default:
		}
	}
	if j.block != nil {
		<-j.block
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	return j.err
}

func newTestScheduler() *Scheduler {
	l := zerolog.Nop()
	return NewScheduler(time.Second, &l)
}

func TestScheduler(t *testing.T) {
	t.Run("should reject an invalid spec", func(t *testing.T) {
		s := newTestScheduler()
		if err := s.Register("every now and then", &countingJob{name: "bad"}); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("should run a job on demand with a trace id and deadline", func(t *testing.T) {
		s := newTestScheduler()
		j := &countingJob{name: "now"}
		s.RunNow(j)
		if atomic.LoadInt32(&j.runs) != 1 {
			t.Fatalf("runs = %d", j.runs)
		}
		if id, _ := j.sawID.Load().(string); id == "" {
			t.Fatal("expected a trace id")
		}
	})

	t.Run("should keep going when a job fails", func(t *testing.T) {
		s := newTestScheduler()
		j := &countingJob{name: "failing", err: errors.New("boom")}
		s.RunNow(j)
		s.RunNow(j)
		if atomic.LoadInt32(&j.runs) != 2 {
			t.Fatalf("runs = %d", j.runs)
		}
	})

	t.Run("should fire scheduled jobs and stop cleanly", func(t *testing.T) {
		s := newTestScheduler()
		j := &countingJob{name: "tick", started: make(chan struct{}, 1)}
		if err := s.Register("@every 1s", j); err != nil {
			t.Fatalf("register: %v", err)
		}
		s.Start(context.Background())
		select {
		case <-j.started:
		case <-time.After(3 * time.Second):
			t.Fatal("job never ran")
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	t.Run("should not wait forever on a stuck job at shutdown", func(t *testing.T) {
		s := newTestScheduler()
		j := &countingJob{name: "stuck", block: make(chan struct{}), started: make(chan struct{}, 1)}
		defer close(j.block)
		if err := s.Register("@every 1s", j); err != nil {
			t.Fatalf("register: %v", err)
		}
		s.Start(context.Background())
		<-j.started
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		begin := time.Now()
		s.Stop(ctx)
		if time.Since(begin) > time.Second {
			t.Fatal("Stop ignored its context")
		}
	})
}
