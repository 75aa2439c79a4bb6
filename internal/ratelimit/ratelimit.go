// Package ratelimit provides a token bucket used to throttle the text a
// server writes to each connection.
package ratelimit

import (
	"io"
	"sync"
	"time"
)

// maxWait caps a single wait so a large write cannot stall a connection for
// long stretches; the remainder of the debt is forgiven.
const maxWait = time.Second

// Limiter is a token bucket refilled at a fixed number of bytes per second.
// Its capacity is one second worth of tokens, so short bursts go through
// unthrottled. A nil *Limiter never waits.
type Limiter struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	tokens     float64
	lastUpdate time.Time

	// sleep is replaced in tests.
	sleep func(time.Duration)
	now   func() time.Time
}

// New returns a limiter for bytesPerSecond, or nil (unlimited) if
// bytesPerSecond is not positive.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	rate := float64(bytesPerSecond)
	return &Limiter{
		rate:       rate,
		burst:      rate,
		tokens:     rate,
		lastUpdate: time.Now(),
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// refill adds the tokens earned since the last update. Callers hold mu.
func (l *Limiter) refill() {
	now := l.now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastUpdate = now
}

// Wait blocks until n bytes may be sent, and returns how long it waited.
func (l *Limiter) Wait(n int) time.Duration {
	if l == nil || n <= 0 {
		return 0
	}

	l.mu.Lock()
	l.refill()
	need := float64(n)
	if l.tokens >= need {
		l.tokens -= need
		l.mu.Unlock()
		return 0
	}
	wait := time.Duration((need - l.tokens) / l.rate * float64(time.Second))
	if wait > maxWait {
		wait = maxWait
	}
	l.mu.Unlock()

	l.sleep(wait)

	l.mu.Lock()
	l.refill()
	if l.tokens >= need {
		l.tokens -= need
	} else {
		l.tokens = 0
	}
	l.mu.Unlock()
	return wait
}

type writer struct {
	w       io.Writer
	limiter *Limiter
}

// NewWriter returns w throttled by limiter. A nil limiter returns w itself.
func NewWriter(w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{w: w, limiter: limiter}
}

// Write sends p in chunks of at most 4KB, waiting for tokens before each.
func (w *writer) Write(p []byte) (int, error) {
	const chunk = 4 * 1024

	written := 0
	for written < len(p) {
		end := min(written+chunk, len(p))
		w.limiter.Wait(end - written)
		n, err := w.w.Write(p[written:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
