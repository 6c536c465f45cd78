package morning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Synthesizer renders text to MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, w io.Writer) error
}

// DefaultVoiceModel is the ElevenLabs model used for announcements.
const DefaultVoiceModel = "eleven_multilingual_v2"

// ElevenLabs calls the text-to-speech REST endpoint.
type ElevenLabs struct {
	BaseURL string
	VoiceID string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type speechRequest struct {
	Text                   string        `json:"text"`
	ModelID                string        `json:"model_id"`
	LanguageCode           string        `json:"language_code"`
	ApplyTextNormalization string        `json:"apply_text_normalization"`
	VoiceSettings          voiceSettings `json:"voice_settings"`
}

// Synthesize implements Synthesizer.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, w io.Writer) error {
	if e.APIKey == "" {
		return errors.New("elevenlabs: missing api key")
	}

	model := e.Model
	if model == "" {
		model = DefaultVoiceModel
	}

	body, err := json.Marshal(speechRequest{
		Text:                   text,
		ModelID:                model,
		LanguageCode:           "en",
		ApplyTextNormalization: "on",
		VoiceSettings:          voiceSettings{Stability: 0.5, SimilarityBoost: 0.5},
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimRight(e.BaseURL, "/"), url.PathEscape(e.VoiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.APIKey)

	resp, err := httpClient(e.HTTP).Do(req)
	if err != nil {
		return fmt.Errorf("text to speech: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("text to speech: status %d: %s", resp.StatusCode, snippet)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	return nil
}
