package pipeline

import (
	"fmt"
	"sync"
)

// healthMinSample gates the distribution flags: percentages over a handful
// of verdicts flap wildly and would mark a freshly started process unhealthy.
const healthMinSample = 100

// HealthReport is the tier distribution over the rolling window.
type HealthReport struct {
	Tier1Pct float64  `json:"tier1_pct"`
	Tier2Pct float64  `json:"tier2_pct"`
	Tier3Pct float64  `json:"tier3_pct"`
	OK       bool     `json:"ok"`
	Messages []string `json:"messages,omitempty"`
	Total    uint64   `json:"total"`
}

// health tracks which tier decided each of the last windowSize verdicts.
// A healthy pipeline answers almost everything at tier 1; drift toward the
// expensive tiers is an operational smell worth flagging before it becomes
// a latency or cost incident.
type health struct {
	mu     sync.Mutex
	window []uint8
	idx    int
	filled int
	counts [4]int // index = tier, 0 unused
	total  uint64
}

func newHealth(windowSize int) *health {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &health{window: make([]uint8, windowSize)}
}

func (h *health) observe(tier int) {
	if tier < 1 || tier > 3 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.filled == len(h.window) {
		h.counts[h.window[h.idx]]--
	} else {
		h.filled++
	}
	h.window[h.idx] = uint8(tier)
	h.counts[tier]++
	h.idx = (h.idx + 1) % len(h.window)
	h.total++
}

func (h *health) report() HealthReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	rep := HealthReport{OK: true, Total: h.total}
	if h.filled == 0 {
		return rep
	}

	n := float64(h.filled)
	rep.Tier1Pct = 100 * float64(h.counts[1]) / n
	rep.Tier2Pct = 100 * float64(h.counts[2]) / n
	rep.Tier3Pct = 100 * float64(h.counts[3]) / n

	if h.filled < healthMinSample {
		return rep
	}

	if rep.Tier1Pct < 80 {
		rep.OK = false
		rep.Messages = append(rep.Messages, fmt.Sprintf("tier 1 resolves only %.1f%% of verdicts (want >= 80%%)", rep.Tier1Pct))
	}
	if rep.Tier2Pct > 15 {
		rep.OK = false
		rep.Messages = append(rep.Messages, fmt.Sprintf("tier 2 handles %.1f%% of verdicts (want <= 15%%)", rep.Tier2Pct))
	}
	if rep.Tier3Pct > 5 {
		rep.OK = false
		rep.Messages = append(rep.Messages, fmt.Sprintf("tier 3 handles %.1f%% of verdicts (want <= 5%%)", rep.Tier3Pct))
	}
	return rep
}
