package watchdog

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	w     *Watchdog
	fired atomic.Int32
	times chan time.Time
}

func newRecorder(t *testing.T, timeout time.Duration) *recorder {
	t.Helper()
	r := &recorder{times: make(chan time.Time, 16)}
	w, err := New(timeout, func(d Deadline) {
		if r.w.Claim(d) {
			r.fired.Add(1)
			r.times <- time.Now()
		}
	})
	require.NoError(t, err)
	r.w = w
	return r
}

func TestNew_InvalidTimeout(t *testing.T) {
	_, err := New(0, func(Deadline) {})
	assert.ErrorIs(t, err, ErrInvalidTimeout)
}

func TestWatchdog_Expiry(t *testing.T) {
	r := newRecorder(t, 100*time.Millisecond)
	assert.False(t, r.w.Armed())

	start := time.Now()
	r.w.Arm()
	assert.True(t, r.w.Armed())

	select {
	case at := <-r.times:
		assert.GreaterOrEqual(t, at.Sub(start), 100*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}
	r.w.Wait()
	assert.False(t, r.w.Armed())
	assert.Equal(t, int32(1), r.fired.Load())
}

func TestWatchdog_Debounce(t *testing.T) {
	r := newRecorder(t, 200*time.Millisecond)

	start := time.Now()
	r.w.Arm()
	time.Sleep(100 * time.Millisecond)
	r.w.Arm()

	select {
	case at := <-r.times:
		assert.GreaterOrEqual(t, at.Sub(start), 300*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}

	time.Sleep(300 * time.Millisecond)
	r.w.Wait()
	assert.Equal(t, int32(1), r.fired.Load())
}

func TestWatchdog_Cancel(t *testing.T) {
	r := newRecorder(t, 50*time.Millisecond)

	r.w.Arm()
	r.w.Cancel()
	assert.False(t, r.w.Armed())

	time.Sleep(150 * time.Millisecond)
	r.w.Wait()
	assert.Equal(t, int32(0), r.fired.Load())
}

func TestWatchdog_StaleDeadlineCannotClaim(t *testing.T) {
	w, err := New(time.Hour, func(Deadline) {})
	require.NoError(t, err)

	first := w.Arm()
	second := w.Arm()

	assert.False(t, w.Claim(first))
	assert.True(t, w.Claim(second))
	assert.False(t, w.Claim(second))
	w.Cancel()
}

func TestWatchdog_SetTimeoutAppliesOnNextArm(t *testing.T) {
	r := newRecorder(t, 100*time.Millisecond)

	start := time.Now()
	r.w.Arm()
	require.NoError(t, r.w.SetTimeout(time.Hour))
	assert.ErrorIs(t, r.w.SetTimeout(-time.Second), ErrInvalidTimeout)
	assert.Equal(t, time.Hour, r.w.Timeout())

	select {
	case at := <-r.times:
		assert.Less(t, at.Sub(start), time.Hour)
	case <-time.After(time.Second):
		t.Fatal("pending deadline should keep its original timeout")
	}
	r.w.Cancel()
}

func TestWatchdog_ConcurrentArm(t *testing.T) {
	r := newRecorder(t, 50*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.w.Arm()
		}()
	}
	wg.Wait()

	time.Sleep(200 * time.Millisecond)
	r.w.Wait()
	assert.Equal(t, int32(1), r.fired.Load())
}
