// Package progress tracks how far a training run has advanced.
//
// Each tracked unit of work moves through four phases in order: ready,
// started, processed, completed. Keeping all four counts allows a resumed
// run to know exactly which phase an interrupted unit was in.
package progress

// Counter holds the four phase counts for one tracking scope.
// Invariant: Ready >= Started >= Processed >= Completed.
type Counter struct {
	Ready     int `json:"ready"`
	Started   int `json:"started"`
	Processed int `json:"processed"`
	Completed int `json:"completed"`
}

// Ordered reports whether the phase counts satisfy the monotonic invariant.
func (c Counter) Ordered() bool {
	return c.Ready >= c.Started && c.Started >= c.Processed && c.Processed >= c.Completed
}

// Progress tracks phase counts for the run as a whole (Total) and for the
// portion since the last reset (Current). Increments always advance both.
type Progress struct {
	Total   Counter `json:"total"`
	Current Counter `json:"current"`
}

// New returns a Progress with all counts at zero.
func New() *Progress {
	return &Progress{}
}

// IncrementReady marks one unit as ready to begin.
func (p *Progress) IncrementReady() {
	p.Total.Ready++
	p.Current.Ready++
}

// IncrementStarted marks one unit as started. Callers must not skip phases:
// IncrementReady must have been called for this unit first.
func (p *Progress) IncrementStarted() {
	p.Total.Started++
	p.Current.Started++
}

// IncrementProcessed marks one unit as processed (its work is done, terminal
// bookkeeping may still be pending).
func (p *Progress) IncrementProcessed() {
	p.Total.Processed++
	p.Current.Processed++
}

// IncrementCompleted marks one unit as fully completed, including terminal
// bookkeeping.
func (p *Progress) IncrementCompleted() {
	p.Total.Completed++
	p.Current.Completed++
}

// ReconcileOnRestart reconciles counts restored from a checkpoint taken
// after a unit was processed but before its terminal hook ran. The work was
// logically finished, so Current.Completed is advanced to Current.Processed.
// It returns true when the counts showed a genuine interruption: a restart
// flag derived from this state must only be honored in that case, since
// equal counts mean the previous run finished cleanly.
func (p *Progress) ReconcileOnRestart() bool {
	c := &p.Current
	interrupted := c.Ready != c.Completed || c.Started != c.Completed || c.Processed != c.Completed
	if interrupted {
		p.Total.Completed += c.Processed - c.Completed
		c.Completed = c.Processed
	}
	return interrupted
}

// ResetOnRestart rolls the current phase counts back to the last completed
// boundary so an interrupted unit is replayed from scratch.
func (p *Progress) ResetOnRestart() {
	c := &p.Current
	c.Ready = c.Completed
	c.Started = c.Completed
	c.Processed = c.Completed
}

// Reset zeroes the current counter, keeping totals.
func (p *Progress) Reset() {
	p.Current = Counter{}
}
