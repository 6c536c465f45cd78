package logic

import "time"

// ClickKind is the classification of a finished click batch.
type ClickKind string

const (
	SingleClick ClickKind = "SINGLE"
	DoubleClick ClickKind = "DOUBLE"
	// IgnoredClick covers batches of any other size. They are not acted on.
	IgnoredClick ClickKind = "IGNORED"
)

// ClickBatch accumulates presses until the quiet window expires.
type ClickBatch struct {
	Count    int
	OpenedAt time.Time
}

// Click is a classified batch.
type Click struct {
	Kind     ClickKind
	Count    int
	OpenedAt time.Time
	At       time.Time
}

// Classifier groups button presses separated by less than the quiet window.
type Classifier struct {
	window time.Duration
	batch  ClickBatch
	timer  Timer
}

// NewClassifier creates a classifier with the given quiet window.
func NewClassifier(window time.Duration) *Classifier {
	return &Classifier{window: window}
}

// Press counts a button press at now and re-arms the quiet window.
func (c *Classifier) Press(now time.Time) {
	if c.batch.Count == 0 {
		c.batch.OpenedAt = now
	}
	c.batch.Count++
	c.timer.Arm(now, c.window)
}

// Cancel drops any pending batch. Safe to call when nothing is pending.
func (c *Classifier) Cancel() {
	c.timer.Cancel()
	c.batch = ClickBatch{}
}

// Pending reports whether a batch is waiting for its quiet window.
func (c *Classifier) Pending() bool {
	return c.timer.Pending()
}

// Batch returns the batch being accumulated.
func (c *Classifier) Batch() ClickBatch {
	return c.batch
}

// Poll checks the quiet window. When it has expired the batch is classified,
// reset, and returned with ok set.
func (c *Classifier) Poll(now time.Time) (Click, bool) {
	if !c.timer.Fire(now) {
		return Click{}, false
	}

	click := Click{
		Kind:     classify(c.batch.Count),
		Count:    c.batch.Count,
		OpenedAt: c.batch.OpenedAt,
		At:       now,
	}
	c.batch = ClickBatch{}

	return click, true
}

func classify(count int) ClickKind {
	switch count {
	case 1:
		return SingleClick
	case 2:
		return DoubleClick
	default:
		// TODO: give audible feedback for triple presses once a sound exists for it.
		return IgnoredClick
	}
}
