package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasteddreams/preheat/internal/model"
)

func TestRun_FiresScanAndModelAndStopsOnSignal(t *testing.T) {
	s := model.New()
	sch := New(s, 10*time.Millisecond, 0)

	var scans, models int32
	sch.DoScan = func() error { atomic.AddInt32(&scans, 1); return nil }
	sch.DoModel = func() error { atomic.AddInt32(&models, 1); return nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sch.Run(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&scans) >= 2 && atomic.LoadInt32(&models) >= 1
	}, time.Second, time.Millisecond)

	sch.Signal(SignalStop)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSignal_DuplicatesCoalesce(t *testing.T) {
	s := model.New()
	sch := New(s, time.Hour, 0)

	var reloads int32
	sch.OnReload = func() { atomic.AddInt32(&reloads, 1) }

	// Enqueue three reloads before anything drains them: they must
	// collapse to a single queued entry (spec §5 coalescing rule).
	sch.mu.Lock()
	before := len(sch.pending)
	sch.mu.Unlock()
	require.Equal(t, 0, before)

	sch.Signal(SignalReload)
	sch.Signal(SignalReload)
	sch.Signal(SignalReload)

	sch.mu.Lock()
	n := len(sch.pending)
	sch.mu.Unlock()
	assert.Equal(t, 1, n)

	stop := sch.drainSignals()
	assert.False(t, stop)
	assert.EqualValues(t, 1, reloads)
}

func TestRun_DirtyStateAutosaves(t *testing.T) {
	s := model.New()
	s.Dirty = true
	sch := New(s, time.Hour, 10*time.Millisecond)

	saved := make(chan struct{}, 1)
	sch.DoSave = func() error {
		select {
		case saved <- struct{}{}:
		default:
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sch.Run(ctx) }()

	select {
	case <-saved:
	case <-time.After(time.Second):
		t.Fatal("autosave did not fire")
	}
	assert.False(t, s.Dirty)

	cancel()
	<-done
}

func TestRun_FinalSaveOnContextCancel(t *testing.T) {
	s := model.New()
	s.Dirty = true
	sch := New(s, time.Hour, 0)

	saveCalled := make(chan struct{}, 1)
	sch.DoSave = func() error {
		saveCalled <- struct{}{}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sch.Run(ctx) }()

	cancel()

	select {
	case <-saveCalled:
	case <-time.After(time.Second):
		t.Fatal("final save did not fire on cancel")
	}
	require.NoError(t, <-done)
}

func TestRun_ScanErrorReportedNotFatal(t *testing.T) {
	s := model.New()
	sch := New(s, 10*time.Millisecond, 0)

	wantErr := errors.New("boom")
	sch.DoScan = func() error { return wantErr }

	var gotSource string
	var gotErr error
	errc := make(chan struct{}, 1)
	sch.ErrHandler = func(source string, err error) {
		gotSource, gotErr = source, err
		select {
		case errc <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sch.Run(ctx)

	select {
	case <-errc:
	case <-time.After(time.Second):
		t.Fatal("error handler not invoked")
	}
	assert.Equal(t, "scan", gotSource)
	assert.Equal(t, wantErr, gotErr)
}

func TestDrainSignals_SaveClearsDirty(t *testing.T) {
	s := model.New()
	s.Dirty = true
	sch := New(s, time.Hour, 0)
	sch.DoSave = func() error { return nil }

	sch.Signal(SignalSave)
	stop := sch.drainSignals()
	assert.False(t, stop)
	assert.False(t, s.Dirty)
}
