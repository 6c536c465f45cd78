package device

import (
	"fmt"
	"path/filepath"
	"time"
)

// Sounds holds absolute paths of the audio the machine plays.
type Sounds struct {
	WhiteNoise  string
	Alarm       string
	Greeting    string
	MorningFile string
	// TTSDir holds the pre-rendered speech clips.
	TTSDir string
}

func (s Sounds) tts(name string) string {
	return filepath.Join(s.TTSDir, name)
}

// TimeClip is the clip announcing t, named by hour and minute without padding
// (8:30 is 830.mp3, 10:00 is 100.mp3).
func (s Sounds) TimeClip(t time.Time) string {
	return s.tts(fmt.Sprintf("%d%d.mp3", t.Hour(), t.Minute()))
}

// NumberClip is the clip reading out a single number 0..59.
func (s Sounds) NumberClip(n int) string {
	return s.tts(filepath.Join("int", fmt.Sprintf("%d.mp3", n)))
}

// ReadySequence is played, in order, when the machine enters the ready state.
func (s Sounds) ReadySequence(alarm, now time.Time) []string {
	return []string{
		s.tts("ready.mp3"),
		s.TimeClip(alarm),
		s.tts("currenttime.mp3"),
		s.NumberClip(now.Hour()),
		s.NumberClip(now.Minute()),
	}
}

// DirectionClip announces the adjustment direction.
func (s Sounds) DirectionClip(backward bool) string {
	if backward {
		return s.tts("backwards.mp3")
	}
	return s.tts("forwards.mp3")
}

// NotAllowedClip is played when ambient sound is locked out.
func (s Sounds) NotAllowedClip() string {
	return s.tts("notallowed.mp3")
}
