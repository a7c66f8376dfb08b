package fatigue

// levelWindow is a fixed-capacity FIFO of decided levels.
// Pushing onto a full window evicts the oldest entry.
type levelWindow struct {
	buf   []Level
	start int
	n     int
}

func newLevelWindow(size int) *levelWindow {
	return &levelWindow{buf: make([]Level, size)}
}

func (w *levelWindow) push(l Level) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = l
		w.n++
		return
	}
	w.buf[w.start] = l
	w.start = (w.start + 1) % len(w.buf)
}

func (w *levelWindow) full() bool {
	return w.n == len(w.buf)
}

func (w *levelWindow) len() int {
	return w.n
}

// levels returns the window contents, oldest first
func (w *levelWindow) levels() []Level {
	out := make([]Level, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// mode returns the most frequent level and its count.
// Ties go to the more severe level.
func (w *levelWindow) mode() (Level, int) {
	var counts [numLevels]int
	for i := 0; i < w.n; i++ {
		l := w.buf[(w.start+i)%len(w.buf)]
		if l.Valid() {
			counts[l]++
		}
	}
	best, bestCount := Alert, 0
	for l := Alert; l <= SevereFatigue; l++ {
		if counts[l] >= bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best, bestCount
}

func (w *levelWindow) clear() {
	w.start, w.n = 0, 0
}

// smoother turns the per-frame decision into the reported level.
// Until the window fills the raw decision passes through. Once full,
// the stable level only moves when one level holds a majority.
type smoother struct {
	window   *levelWindow
	majority int
	stable   Level
}

func newSmoother(window, majority int) smoother {
	return smoother{window: newLevelWindow(window), majority: majority, stable: Alert}
}

// update records raw and returns the level to report.
// smoothed is false while the window is still filling.
func (s *smoother) update(raw Level) (level Level, smoothed bool) {
	s.window.push(raw)
	if !s.window.full() {
		return raw, false
	}
	if mode, count := s.window.mode(); count >= s.majority {
		s.stable = mode
	}
	return s.stable, true
}

func (s *smoother) reset() {
	s.window.clear()
	s.stable = Alert
}
