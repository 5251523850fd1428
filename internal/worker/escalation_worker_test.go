package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/service"
	"github.com/civic-desk/issue-sla-service/internal/sla"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

type fakeSweeper struct {
	calls  int
	actor  domain.Actor
	result *service.AutoEscalateResult
	err    error
}

func (f *fakeSweeper) AutoEscalate(_ context.Context, actor domain.Actor) (*service.AutoEscalateResult, error) {
	f.calls++
	f.actor = actor
	return f.result, f.err
}

type fakeOverdue struct {
	records []sla.OverdueRecord
	err     error
}

func (f *fakeOverdue) Overdue(context.Context, service.OverdueQuery) ([]sla.OverdueRecord, error) {
	return f.records, f.err
}

type fakeNotifier struct {
	got [][]sla.OverdueRecord
}

func (f *fakeNotifier) NotifyOverdue(_ context.Context, records []sla.OverdueRecord) service.OverdueDigest {
	f.got = append(f.got, records)
	return service.BuildOverdueDigest(records)
}

func TestRunOnceSweepsThenNotifies(t *testing.T) {
	sweeper := &fakeSweeper{result: &service.AutoEscalateResult{Scanned: 3, Escalated: 1}}
	overdue := &fakeOverdue{records: []sla.OverdueRecord{{Issue: domain.Issue{ID: "i-1"}}}}
	notifier := &fakeNotifier{}
	w := NewEscalationWorker(sweeper, overdue, notifier, time.Minute, zaptest.NewLogger(t))

	require.NoError(t, w.RunOnce(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, domain.SystemActor, sweeper.actor)
	require.Len(t, notifier.got, 1)
	assert.Equal(t, "i-1", notifier.got[0][0].Issue.ID)
}

func TestRunOnceSkipsHeldLock(t *testing.T) {
	sweeper := &fakeSweeper{err: apperrors.NewPolicyError("sweep already running", nil)}
	notifier := &fakeNotifier{}
	w := NewEscalationWorker(sweeper, &fakeOverdue{}, notifier, time.Minute, zaptest.NewLogger(t))

	require.NoError(t, w.RunOnce(context.Background()))
	assert.Empty(t, notifier.got)
}

func TestRunOnceReturnsErrors(t *testing.T) {
	boom := errors.New("db down")
	w := NewEscalationWorker(&fakeSweeper{err: boom}, nil, nil, time.Minute, zaptest.NewLogger(t))
	assert.ErrorIs(t, w.RunOnce(context.Background()), boom)

	sweeper := &fakeSweeper{result: &service.AutoEscalateResult{}}
	w = NewEscalationWorker(sweeper, &fakeOverdue{err: boom}, &fakeNotifier{}, time.Minute, zaptest.NewLogger(t))
	assert.ErrorIs(t, w.RunOnce(context.Background()), boom)
}

func TestRunDisabled(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := NewEscalationWorker(sweeper, nil, nil, 0, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for a disabled worker")
	}
	assert.Zero(t, sweeper.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	w := NewEscalationWorker(&fakeSweeper{result: &service.AutoEscalateResult{}}, nil, nil, time.Hour, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
