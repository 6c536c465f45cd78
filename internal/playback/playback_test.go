package playback

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePlayer writes a shell script standing in for cvlc. It logs its arguments,
// exits at once for --play-and-exit and otherwise sleeps until killed.
func fakePlayer(t *testing.T) (binary, logPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	binary = filepath.Join(dir, "cvlc")

	script := `#!/bin/sh
echo "$@" >> "` + logPath + `"
case "$*" in
  *--play-and-exit*) exit 0 ;;
esac
exec sleep 30
`
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))
	return binary, logPath
}

func readLog(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

func TestVLCRepeatPlaysUntilStopped(t *testing.T) {
	binary, logPath := fakePlayer(t)
	v := NewVLC(binary)
	ctx := context.Background()

	require.NoError(t, v.Play(ctx, "/sounds/noise.mp3", true))
	require.True(t, v.Playing())
	require.Eventually(t, func() bool { _, err := os.Stat(logPath); return err == nil }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, v.Stop())
	require.False(t, v.Playing())
	require.NoError(t, v.Stop(), "stopping nothing is a no-op")

	require.Equal(t, []string{"--quiet --repeat file:///sounds/noise.mp3"}, readLog(t, logPath))
}

func TestVLCPlayReplacesCurrent(t *testing.T) {
	binary, _ := fakePlayer(t)
	v := NewVLC(binary)
	ctx := context.Background()

	require.NoError(t, v.Play(ctx, "/sounds/noise.mp3", true))
	first := v.current

	require.NoError(t, v.Play(ctx, "/sounds/alarm.mp3", true))
	require.NotSame(t, first, v.current)

	select {
	case <-first.done:
	default:
		t.Fatal("previous player process still running")
	}

	require.NoError(t, v.Stop())
}

func TestVLCPlayBlockingWaits(t *testing.T) {
	binary, logPath := fakePlayer(t)
	v := NewVLC(binary)

	require.NoError(t, v.PlayBlocking(context.Background(), "/tts/ready.mp3"))
	require.False(t, v.Playing())
	require.Equal(t, []string{"--quiet --play-and-exit file:///tts/ready.mp3"}, readLog(t, logPath))
}

func TestVLCPlayBlockingHonoursContext(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	hang := filepath.Join(t.TempDir(), "cvlc")
	require.NoError(t, os.WriteFile(hang, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))
	v := NewVLC(hang)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := v.PlayBlocking(ctx, "/tts/ready.mp3")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
	require.False(t, v.Playing())
}

func TestVLCMissingBinary(t *testing.T) {
	v := NewVLC(filepath.Join(t.TempDir(), "no-such-player"))
	require.Error(t, v.Play(context.Background(), "/x.mp3", false))
	require.False(t, v.Playing())
}

func TestFakeRecordsCalls(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	require.NoError(t, f.Play(ctx, "a.mp3", true))
	require.Equal(t, "a.mp3", f.Playing())
	require.NoError(t, f.PlayBlocking(ctx, "b.mp3"))
	require.NoError(t, f.Stop())

	require.Equal(t, []Call{
		{Op: "play", Path: "a.mp3", Repeat: true},
		{Op: "play-blocking", Path: "b.mp3"},
		{Op: "stop"},
	}, f.Calls())
	require.Equal(t, []string{"b.mp3"}, f.Paths("play-blocking"))

	f.Reset()
	require.Empty(t, f.Calls())
}
