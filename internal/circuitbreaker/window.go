package circuitbreaker

// outcomeWindow keeps the last size call outcomes.
type outcomeWindow struct {
	outcomes []bool // true means failure
	next     int
	filled   int
	failures int
}

func newOutcomeWindow(size int) *outcomeWindow {
	return &outcomeWindow{outcomes: make([]bool, size)}
}

func (w *outcomeWindow) record(failed bool) {
	if w.filled == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.filled++
	}

	w.outcomes[w.next] = failed
	if failed {
		w.failures++
	}

	w.next = (w.next + 1) % len(w.outcomes)
}

func (w *outcomeWindow) total() int {
	return w.filled
}

func (w *outcomeWindow) failureRatio() float64 {
	if w.filled == 0 {
		return 0
	}

	return float64(w.failures) / float64(w.filled)
}

func (w *outcomeWindow) reset() {
	clear(w.outcomes)
	w.next = 0
	w.filled = 0
	w.failures = 0
}
