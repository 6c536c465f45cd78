package morning

import (
	"context"
	"os"
	"sync"
)

// Fake is an Announcer for tests. When Err is nil it writes Audio to the output path.
type Fake struct {
	mu    sync.Mutex
	Err   error
	Audio []byte
	calls []string
}

// Generate implements Announcer.
func (f *Fake) Generate(_ context.Context, outputPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, outputPath)
	if f.Err != nil {
		return f.Err
	}
	return os.WriteFile(outputPath, f.Audio, 0o600)
}

// Calls returns every output path requested.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
