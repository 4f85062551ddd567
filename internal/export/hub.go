package export

import "sync"

// subscriberBuffer bounds each progress subscriber. A slow reader drops
// intermediate values rather than stalling the export worker.
const subscriberBuffer = 16

// hub fans per-job progress values out to subscribers. A job's channels
// are closed when it reaches a terminal state; subscribers read the close
// as the signal to fetch the final job record.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan int]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan int]struct{})}
}

func (h *hub) subscribe(jobID string) chan int {
	ch := make(chan int, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.subs[jobID]
	if m == nil {
		m = make(map[chan int]struct{})
		h.subs[jobID] = m
	}
	m[ch] = struct{}{}
	return ch
}

// unsubscribe detaches and closes a subscriber channel. Safe to call after
// the job's channels were already closed.
func (h *hub) unsubscribe(jobID string, ch chan int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.subs[jobID]
	if !ok {
		return
	}
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	close(ch)
	if len(m) == 0 {
		delete(h.subs, jobID)
	}
}

func (h *hub) publish(jobID string, progress int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[jobID] {
		select {
		case ch <- progress:
		default:
		}
	}
}

func (h *hub) closeJob(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[jobID] {
		close(ch)
	}
	delete(h.subs, jobID)
}
