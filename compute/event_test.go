package compute

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/gocompute/backend"
	"github.com/stretchr/testify/require"
)

func TestUserEvent(t *testing.T) {
	_, ctx, _ := setup(t, backend.Version1_2, nil)
	event := capture(ctx.NewUserEvent()).Test(t)
	defer event.Release()
	require.Equal(t, backend.Submitted, capture(event.Status()).Test(t))
	require.Equal(t, backend.CommandUser, capture(event.CommandType()).Test(t))

	require.NoError(t, event.SetComplete())
	require.Equal(t, backend.Complete, capture(event.Status()).Test(t))
	require.NoError(t, event.Wait())

	// Terminal states are final.
	err := event.SetComplete()
	require.Error(t, err)
	require.Equal(t, backend.InvalidOperation, StatusOf(err))
	err = event.SetStatus(backend.ErrorStatus(backend.OutOfResources))
	require.Equal(t, backend.InvalidOperation, StatusOf(err))
	require.Equal(t, backend.Complete, capture(event.Status()).Test(t))

	require.Panics(t, func() { _ = event.SetStatus(backend.Running) })

	// A failed user event.
	failed := capture(ctx.NewUserEvent()).Test(t)
	defer failed.Release()
	require.NoError(t, failed.SetStatus(backend.ErrorStatus(backend.OutOfResources)))
	err = failed.Wait()
	require.Error(t, err)
	require.Equal(t, backend.OutOfResources, StatusOf(err))
}

func TestEventCallbacks(t *testing.T) {
	_, ctx, q := setup(t, backend.Version1_2, nil)
	gate := capture(ctx.NewUserEvent()).Test(t)
	defer gate.Release()

	var ran atomic.Bool
	event := capture(q.EnqueueNativeKernelAsync(func() { ran.Store(true) }, &gate.Event)).Test(t)
	defer event.Release()

	completed := make(chan backend.ExecutionStatus, 1)
	require.NoError(t, event.OnComplete(func(status backend.ExecutionStatus) {
		completed <- status
	}))
	submitted := make(chan backend.ExecutionStatus, 1)
	require.NoError(t, event.OnStatus(backend.Submitted, func(status backend.ExecutionStatus) {
		submitted <- status
	}))
	select {
	case <-completed:
		t.Fatal("callback fired before the command completed")
	case <-time.After(10 * time.Millisecond):
	}
	require.False(t, ran.Load())

	require.NoError(t, gate.SetComplete())
	require.Equal(t, backend.Complete, <-completed)
	require.True(t, ran.Load())
	status := <-submitted
	require.True(t, status <= backend.Submitted)

	// Callbacks registered after the event completed fire right away.
	late := make(chan backend.ExecutionStatus, 1)
	require.NoError(t, event.OnComplete(func(status backend.ExecutionStatus) { late <- status }))
	require.Equal(t, backend.Complete, <-late)

	require.Panics(t, func() { _ = event.OnComplete(nil) })
}

func TestWaitListFailure(t *testing.T) {
	_, ctx, q := setup(t, backend.Version1_2, nil)
	buf := capture(ctx.NewBuffer(16).Done()).Test(t)
	gate := capture(ctx.NewUserEvent()).Test(t)
	defer gate.Release()

	var wl WaitList
	defer wl.Release()
	wl.Insert(gate.Event.Clone())
	wl.Insert(nil)
	require.Equal(t, 2, wl.Len())

	write := capture(q.EnqueueWriteBufferAsync(buf, 0, []byte{1, 2, 3, 4}, wl...)).Test(t)
	defer write.Release()
	require.NoError(t, gate.SetStatus(backend.ErrorStatus(backend.OutOfResources)))

	// The write never runs, and its failure is reported by Wait.
	err := write.Wait()
	require.Error(t, err)
	require.Equal(t, backend.ExecStatusErrorForEventsInWaitList, StatusOf(err))
	require.Error(t, wl.Wait())
	require.Error(t, WaitForEvents(&gate.Event, write))

	dst := make([]byte, 4)
	require.NoError(t, q.EnqueueReadBuffer(buf, 0, dst))
	require.Equal(t, []byte{0, 0, 0, 0}, dst)

	// Only null events: nothing to wait for.
	require.NoError(t, WaitForEvents(nil, &Event{}))
}

func TestWaitListContext(t *testing.T) {
	_, ctx, q := setup(t, backend.Version1_2, nil)
	_, otherCtx, _ := setup(t, backend.Version1_2, nil)
	other := capture(otherCtx.NewUserEvent()).Test(t)
	defer other.Release()
	require.Panics(t, func() { _, _ = q.EnqueueMarkerWithWaitList(&other.Event) })

	// Events of another context of the same backend are also rejected.
	b := q.Backend()
	devices := capture(Devices(b)).Test(t)
	sameBackendCtx := capture(NewContext(b, devices...)).Test(t)
	defer sameBackendCtx.Release()
	foreign := capture(sameBackendCtx.NewUserEvent()).Test(t)
	defer foreign.Release()
	require.Panics(t, func() { _ = q.EnqueueBarrierWithWaitList(&foreign.Event) })
	require.NoError(t, foreign.SetComplete())
	require.NoError(t, other.SetComplete())

	// Events of the queue's own context are accepted.
	own := capture(ctx.NewUserEvent()).Test(t)
	defer own.Release()
	marker := capture(q.EnqueueMarkerWithWaitList(&own.Event)).Test(t)
	defer marker.Release()
	require.NoError(t, own.SetComplete())
	require.NoError(t, marker.Wait())
}

func TestProfiling(t *testing.T) {
	_, _, q := setup(t, backend.Version1_2, func(cfg *QueueConfig) { cfg.WithProfiling() })
	require.True(t, q.Properties().Profiling())

	event := capture(q.EnqueueNativeKernelAsync(func() { time.Sleep(5 * time.Millisecond) })).Test(t)
	defer event.Release()
	require.NoError(t, event.Wait())
	info := capture(event.ProfilingInfo()).Test(t)
	require.True(t, info.Queued <= info.Submitted)
	require.True(t, info.Submitted <= info.Started)
	require.True(t, info.Started <= info.Ended)
	require.True(t, capture(event.Duration()).Test(t) >= 5*time.Millisecond)

	// Queues without profiling don't have the information.
	_, ctx2, q2 := setup(t, backend.Version1_2, nil)
	buf2 := capture(ctx2.NewBuffer(16).Done()).Test(t)
	fill := capture(q2.EnqueueFillBufferAsync(buf2, []byte{1}, 0, 16)).Test(t)
	defer fill.Release()
	require.NoError(t, fill.Wait())
	_, err := fill.ProfilingInfo()
	require.Equal(t, backend.ProfilingInfoNotAvailable, StatusOf(err))
	_, err = fill.Duration()
	require.Error(t, err)
}

func TestAdoptEvent(t *testing.T) {
	b, _, q := setup(t, backend.Version1_2, nil)
	event := capture(q.EnqueueMarker()).Test(t)
	adopted := capture(AdoptEvent(b, event.ID(), true)).Test(t)
	require.True(t, adopted.Equal(event))
	require.NoError(t, adopted.Wait())
	require.Equal(t, 2, capture(event.ReferenceCount()).Test(t))
	adopted.Release()
	event.Release()
}
