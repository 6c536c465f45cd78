package logic

import "time"

// Sampler turns fixed-rate samples into edges.
// There is no debounce beyond the sampling period: any difference between two
// consecutive samples is an edge.
type Sampler struct {
	rotary        bool
	button        bool
	baselined     bool
	startTime     time.Time
	counts        EdgeCounts
	lastHeartbeat time.Time
}

// NewSampler creates a sampler. The startTime is used for heartbeat uptime.
func NewSampler(startTime time.Time) *Sampler {
	return &Sampler{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process compares input against the previous sample and returns the edges,
// rotary first. The first sample only records the baseline levels.
func (s *Sampler) Process(input Input) []Edge {
	if !s.baselined {
		s.rotary = input.Rotary
		s.button = input.Button
		s.baselined = true
		return nil
	}

	var edges []Edge

	if input.Rotary != s.rotary {
		e := Edge{Line: LineRotary, Direction: directionTo(input.Rotary), Time: input.Time}
		if e.IsRotaryPulse() {
			s.counts.RotaryPulses++
		}
		edges = append(edges, e)
	}

	if input.Button != s.button {
		e := Edge{Line: LineButton, Direction: directionTo(input.Button), Time: input.Time}
		if e.IsButtonPress() {
			s.counts.ButtonPresses++
		}
		edges = append(edges, e)
	}

	s.rotary = input.Rotary
	s.button = input.Button

	return edges
}

func directionTo(high bool) Direction {
	if high {
		return Rising
	}
	return Falling
}

// IsBaselined returns whether a first sample has been seen.
func (s *Sampler) IsBaselined() bool {
	return s.baselined
}

// Levels returns the last sampled levels.
func (s *Sampler) Levels() (rotary, button bool) {
	return s.rotary, s.button
}

// Counts returns the edge counters since startup.
func (s *Sampler) Counts() EdgeCounts {
	return s.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed or
// if interval is <= 0 (disabled).
func (s *Sampler) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(s.lastHeartbeat) < interval {
		return nil
	}

	s.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(s.startTime),
		Counts:    s.counts,
	}
}
