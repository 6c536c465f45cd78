package playback

import (
	"context"
	"sync"
)

// Call records one request made to a Fake.
type Call struct {
	Op     string // "play", "play-blocking" or "stop"
	Path   string
	Repeat bool
}

// Fake records playback requests for test assertions. Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	calls   []Call
	playing string
	// PlayErr, if set, is returned by Play and PlayBlocking.
	PlayErr error
}

// NewFake creates an idle Fake.
func NewFake() *Fake {
	return &Fake{}
}

// Play implements Player.
func (f *Fake) Play(_ context.Context, path string, repeat bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: "play", Path: path, Repeat: repeat})
	if f.PlayErr != nil {
		return f.PlayErr
	}
	f.playing = path
	return nil
}

// PlayBlocking implements Player. It returns immediately.
func (f *Fake) PlayBlocking(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: "play-blocking", Path: path})
	f.playing = ""
	return f.PlayErr
}

// Stop implements Player.
func (f *Fake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: "stop"})
	f.playing = ""
	return nil
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Call(nil), f.calls...)
}

// Playing returns the path currently "playing" or "".
func (f *Fake) Playing() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.playing
}

// Paths returns the paths of calls with the given op, in order.
func (f *Fake) Paths(op string) []string {
	var out []string
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c.Path)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = nil
	f.playing = ""
}
