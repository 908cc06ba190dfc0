package textutil

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
)

// Pacing derives the delays that make multi-part replies read like a person
// typing rather than a burst of text.
type Pacing struct {
	// TypingSpeed is characters per second. Zero means the default of 50.
	TypingSpeed float64
	rng         func() float64
}

// NewPacing returns a Pacing with default speed and randomness.
func NewPacing() *Pacing {
	return &Pacing{TypingSpeed: 50, rng: rand.Float64}
}

const (
	minTypingDelay  = 500 * time.Millisecond
	maxTypingDelay  = 5 * time.Second
	minSegmentDelay = 500 * time.Millisecond
	maxSegmentDelay = 3 * time.Second
	minReadingDelay = 500 * time.Millisecond
)

var trailingPunctRe = regexp.MustCompile(`[?!]$`)

// TypingDelay estimates how long composing message would take.
func (p *Pacing) TypingDelay(message string) time.Duration {
	speed := p.TypingSpeed
	if speed <= 0 {
		speed = 50
	}
	d := time.Duration(float64(len(message)) / speed * p.jitter(0.8, 1.2) * float64(time.Second))
	return clamp(d, minTypingDelay, maxTypingDelay)
}

// ReadingDelay estimates how long reading message would take, assuming five
// characters per word and three words per second.
func (p *Pacing) ReadingDelay(message string) time.Duration {
	words := float64(len(message)) / 5
	d := time.Duration(words / 3 * p.jitter(0.9, 1.1) * float64(time.Second))
	if d < minReadingDelay {
		d = minReadingDelay
	}
	return d
}

// SegmentDelay returns a pause to insert before current when it follows
// previous in a multi-part reply. Pauses grow after questions, exclamations
// and apparent topic changes.
func (p *Pacing) SegmentDelay(current, previous string) time.Duration {
	delay := 1.0
	if previous != "" {
		if trailingPunctRe.MatchString(strings.TrimSpace(previous)) {
			delay += 0.5
		}
		if topicShift(previous, current) {
			delay += 0.5
		}
	}
	d := time.Duration(delay * p.jitter(0.8, 1.2) * float64(time.Second))
	return clamp(d, minSegmentDelay, maxSegmentDelay)
}

func topicShift(previous, current string) bool {
	prev := wordSet(previous)
	curr := wordSet(current)
	smaller := len(prev)
	if len(curr) < smaller {
		smaller = len(curr)
	}
	common := 0
	for w := range prev {
		if _, ok := curr[w]; ok {
			common++
		}
	}
	return float64(common) < float64(smaller)*0.3
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(Normalize(s)) {
		out[w] = struct{}{}
	}
	return out
}

func (p *Pacing) jitter(lo, hi float64) float64 {
	f := p.rng
	if f == nil {
		f = rand.Float64
	}
	return lo + f()*(hi-lo)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
