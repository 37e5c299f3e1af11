package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	pid int
	sig syscall.Signal
}

type companionFixture struct {
	c      *Companion
	sent   []sent
	sleeps []time.Duration
}

func newCompanion(t *testing.T, running bool, loopDelay time.Duration) *companionFixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keebie.pid")
	if running {
		require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600))
	}

	f := &companionFixture{}
	f.c = NewCompanion(NewPIDFile(path), loopDelay)
	f.c.signal = func(pid int, sig syscall.Signal) error {
		f.sent = append(f.sent, sent{pid, sig})
		return nil
	}
	f.c.sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }
	return f
}

func (f *companionFixture) signals() []syscall.Signal {
	var sigs []syscall.Signal
	for _, s := range f.sent {
		sigs = append(sigs, s.sig)
	}
	return sigs
}

func TestPauseWaitsForDaemon(t *testing.T) {
	tests := []struct {
		loopDelay time.Duration
		want      time.Duration
	}{
		{10 * time.Millisecond, minPauseWait},
		{100 * time.Millisecond, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		f := newCompanion(t, true, tt.loopDelay)

		require.NoError(t, f.c.Pause())
		assert.True(t, f.c.Paused())
		assert.Equal(t, []sent{{os.Getpid(), syscall.SIGUSR1}}, f.sent)
		assert.Equal(t, []time.Duration{tt.want}, f.sleeps)
	}
}

func TestResumeExactlyOnce(t *testing.T) {
	f := newCompanion(t, true, 10*time.Millisecond)

	require.NoError(t, f.c.Resume(), "nothing to resume")
	require.NoError(t, f.c.Pause())
	require.NoError(t, f.c.Pause())
	require.NoError(t, f.c.Resume())
	require.NoError(t, f.c.Resume())

	assert.Equal(t, []syscall.Signal{syscall.SIGUSR1, syscall.SIGUSR2}, f.signals())
	assert.False(t, f.c.Paused())
}

func TestPauseWithoutDaemon(t *testing.T) {
	f := newCompanion(t, false, 10*time.Millisecond)

	assert.ErrorIs(t, f.c.Pause(), ErrNotRunning)
	assert.False(t, f.c.Paused())
	assert.Empty(t, f.sent)
}

func TestRunResumesOnError(t *testing.T) {
	f := newCompanion(t, true, 10*time.Millisecond)
	boom := errors.New("boom")

	err := f.c.Run(func() error {
		assert.True(t, f.c.Paused())
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []syscall.Signal{syscall.SIGUSR1, syscall.SIGUSR2}, f.signals())
}

func TestRunResumesOnPanic(t *testing.T) {
	f := newCompanion(t, true, 10*time.Millisecond)

	assert.Panics(t, func() {
		_ = f.c.Run(func() error { panic("capture crashed") })
	})
	assert.Equal(t, []syscall.Signal{syscall.SIGUSR1, syscall.SIGUSR2}, f.signals())
}

func TestRunWithoutDaemon(t *testing.T) {
	f := newCompanion(t, false, 10*time.Millisecond)
	ran := false

	require.NoError(t, f.c.Run(func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	assert.Empty(t, f.sent)
}

func TestSendWithoutDaemon(t *testing.T) {
	f := newCompanion(t, false, 10*time.Millisecond)

	_, err := f.c.Send(syscall.SIGUSR2)
	assert.ErrorIs(t, err, ErrNotRunning)
}
