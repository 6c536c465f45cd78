// Package playback owns the single audio playback slot. Starting anything
// stops whatever is playing first, so at most one player process exists.
package playback

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/sweeney/sleep-machine/internal/logger"
)

// Player plays audio files.
type Player interface {
	// Play replaces the current playback and returns once the file has started.
	Play(ctx context.Context, path string, repeat bool) error
	// PlayBlocking replaces the current playback and waits for it to finish.
	PlayBlocking(ctx context.Context, path string) error
	// Stop ends the current playback. Stopping nothing is a no-op.
	Stop() error
}

// process is one running player.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// VLC drives the command-line VLC front end (cvlc).
type VLC struct {
	binary  string
	mu      sync.Mutex
	current *process
}

// NewVLC returns a Player running binary (usually "cvlc").
func NewVLC(binary string) *VLC {
	return &VLC{binary: binary}
}

// Play implements Player.
func (v *VLC) Play(ctx context.Context, path string, repeat bool) error {
	args := []string{"--quiet"}
	if repeat {
		args = append(args, "--repeat")
	} else {
		args = append(args, "--play-and-exit")
	}

	_, err := v.start(ctx, append(args, fileURL(path))...)
	return err
}

// PlayBlocking implements Player.
func (v *VLC) PlayBlocking(ctx context.Context, path string) error {
	p, err := v.start(ctx, "--quiet", "--play-and-exit", fileURL(path))
	if err != nil {
		return err
	}

	select {
	case <-p.done:
		if p.err != nil && !isKilled(p.err) {
			return fmt.Errorf("play %s: %w", path, p.err)
		}
		return nil
	case <-ctx.Done():
		v.stopProcess(p)
		return ctx.Err()
	}
}

// Stop implements Player.
func (v *VLC) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stopLocked()
	return nil
}

// Playing reports whether a player process is running.
func (v *VLC) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.current != nil
}

func (v *VLC) start(ctx context.Context, args ...string) (*process, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stopLocked()

	cmd := exec.Command(v.binary, args...) //nolint:gosec // binary comes from the config file.
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", v.binary, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{})}
	v.current = p

	logger.DebugKV(ctx, "Playback started", "args", args, "pid", cmd.Process.Pid)

	go func() {
		p.err = cmd.Wait()
		close(p.done)

		v.mu.Lock()
		if v.current == p {
			v.current = nil
		}
		v.mu.Unlock()
	}()

	return p, nil
}

func (v *VLC) stopProcess(p *process) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.current == p {
		v.stopLocked()
	}
}

// stopLocked kills the current process and waits for it to be reaped.
func (v *VLC) stopLocked() {
	p := v.current
	if p == nil {
		return
	}
	v.current = nil

	_ = p.cmd.Process.Kill()
	<-p.done
}

func fileURL(path string) string {
	return "file://" + path
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && !exitErr.Exited()
}
