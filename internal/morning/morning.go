// Package morning builds the spoken wake-up announcement: today's forecast read
// by a cheerful weather man, a fun fact, rendered to an MP3 file.
package morning

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sweeney/sleep-machine/internal/logger"
)

// Announcer writes a morning announcement to outputPath.
type Announcer interface {
	Generate(ctx context.Context, outputPath string) error
}

// Generator composes and renders the announcement.
type Generator struct {
	Weather   Forecaster
	Writer    Writer
	Speech    Synthesizer
	FactsFile string

	// Intn picks a fact index; nil uses math/rand.
	Intn func(n int) int
	// Now is used for the date in the prompt; nil uses time.Now.
	Now func() time.Time
}

var errNothingToSay = errors.New("no forecast and no fun fact")

// Generate implements Announcer. A partially written file never replaces outputPath.
func (g *Generator) Generate(ctx context.Context, outputPath string) error {
	text, err := g.Compose(ctx)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".morning-*.mp3")
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := g.Speech.Synthesize(ctx, text, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close audio file: %w", err)
	}
	if err := os.Rename(tmp.Name(), outputPath); err != nil {
		return fmt.Errorf("move audio file: %w", err)
	}

	logger.InfoKV(ctx, "Morning announcement written", "path", outputPath, "chars", len(text))
	return nil
}

// Compose returns the announcement text. Without a forecast it falls back to
// the fun fact alone; if the writer fails the bare fun fact is used.
func (g *Generator) Compose(ctx context.Context) (string, error) {
	fact, factErr := PickFact(g.FactsFile, g.Intn)
	if factErr != nil {
		logger.WarnKV(ctx, "Fun fact unavailable", "error", factErr)
	}

	var forecast string
	if g.Weather != nil {
		var err error
		forecast, err = g.Weather.Forecast(ctx)
		if err != nil {
			logger.WarnKV(ctx, "Forecast unavailable", "error", err)
		}
	}

	if forecast == "" {
		if factErr != nil {
			return "", errNothingToSay
		}
		return "Here's a random fun fact: " + fact, nil
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	text, err := g.Writer.Write(ctx, Prompt(forecast, fact, now()))
	if err != nil {
		logger.WarnKV(ctx, "Announcement text generation failed", "error", err)
		if factErr != nil {
			return "", fmt.Errorf("write announcement: %w", err)
		}
		return fact, nil
	}
	return text, nil
}

// Prompt is the weather-man prompt sent to the writer. An empty fact is left out.
func Prompt(forecast, fact string, today time.Time) string {
	var b strings.Builder
	b.WriteString("You are a easy-going, silly weather man reporting today's forecast. ")
	fmt.Fprintf(&b, "Today's forecast is %s. ", forecast)
	fmt.Fprintf(&b, "Today's date is %s. ", today.Format("January 02, 2006"))
	b.WriteString("Give the weather report for today")
	if fact != "" {
		fmt.Fprintf(&b, ", then throw in this fun fact: %q", fact)
	}
	b.WriteString(". Keep it under 200 words.")
	return b.String()
}

// PickFact returns a random non-blank line of path.
func PickFact(path string, intn func(int) int) (string, error) {
	if path == "" {
		return "", errors.New("no fun facts file configured")
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open fun facts: %w", err)
	}
	defer f.Close()

	var facts []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			facts = append(facts, line)
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read fun facts: %w", err)
	}
	if len(facts) == 0 {
		return "", fmt.Errorf("fun facts file %s is empty", path)
	}

	if intn == nil {
		intn = rand.Intn
	}
	return facts[intn(len(facts))], nil
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
