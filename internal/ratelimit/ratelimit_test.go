package ratelimit

import (
	"bytes"
	"testing"
	"time"
)

// fakeClock drives a limiter without sleeping.
type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func (c *fakeClock) install(l *Limiter) {
	l.now = func() time.Time { return c.now }
	l.sleep = func(d time.Duration) {
		c.slept += d
		c.now = c.now.Add(d)
	}
	l.lastUpdate = c.now
}

func newTestLimiter(t *testing.T, rate int64) (*Limiter, *fakeClock) {
	t.Helper()
	l := New(rate)
	if l == nil {
		t.Fatalf("New(%d) returned nil", rate)
	}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	clock.install(l)
	return l, clock
}

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		bytesPerSecond int64
		expectNil      bool
	}{
		{"Valid rate", 1024, false},
		{"Zero rate (unlimited)", 0, true},
		{"Negative rate (unlimited)", -1, true},
		{"Very low rate", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.bytesPerSecond)
			if tt.expectNil && limiter != nil {
				t.Errorf("Expected nil limiter for rate %d, got non-nil", tt.bytesPerSecond)
			}
			if !tt.expectNil && limiter == nil {
				t.Errorf("Expected non-nil limiter for rate %d, got nil", tt.bytesPerSecond)
			}
		})
	}
}

func TestWait_Burst(t *testing.T) {
	l, clock := newTestLimiter(t, 1000)

	if d := l.Wait(600); d != 0 {
		t.Errorf("first write within burst waited %v", d)
	}
	if d := l.Wait(400); d != 0 {
		t.Errorf("write exhausting burst waited %v", d)
	}
	if clock.slept != 0 {
		t.Errorf("slept %v, want 0", clock.slept)
	}
}

func TestWait_Throttles(t *testing.T) {
	l, clock := newTestLimiter(t, 1000)

	l.Wait(600)
	d := l.Wait(600)

	want := 200 * time.Millisecond
	if diff := d - want; diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("waited %v, want about %v", d, want)
	}
	if clock.slept != d {
		t.Errorf("slept %v, reported %v", clock.slept, d)
	}
}

func TestWait_CappedAtMaxWait(t *testing.T) {
	l, _ := newTestLimiter(t, 100)

	l.Wait(100)
	if d := l.Wait(10000); d != maxWait {
		t.Errorf("waited %v, want cap %v", d, maxWait)
	}
}

func TestWait_NilLimiter(t *testing.T) {
	var l *Limiter
	if d := l.Wait(1 << 20); d != 0 {
		t.Errorf("nil limiter waited %v", d)
	}
}

func TestNewWriter(t *testing.T) {
	var buf bytes.Buffer

	// With nil limiter, should return original writer
	limited := NewWriter(&buf, nil)
	if limited != &buf {
		t.Error("Expected original writer when limiter is nil")
	}

	// With valid limiter, should return wrapped writer
	limited = NewWriter(&buf, New(1024))
	if limited == &buf {
		t.Error("Expected wrapped writer when limiter is non-nil")
	}
}

func TestWriter_Write(t *testing.T) {
	data := make([]byte, 10*1024)
	for i := range data {
		data[i] = byte(i % 256)
	}

	// 4KB/s: the first 4KB chunk is the burst, the next two wait.
	l, clock := newTestLimiter(t, 4*1024)

	var buf bytes.Buffer
	n, err := NewWriter(&buf, l).Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, got %d", len(data), n)
	}
	if !bytes.Equal(data, buf.Bytes()) {
		t.Error("Data mismatch after rate-limited write")
	}
	if clock.slept < time.Second {
		t.Errorf("slept %v, rate limiting may not be working", clock.slept)
	}
}

func BenchmarkWriter(b *testing.B) {
	data := make([]byte, 1024)
	limiter := New(1024 * 1024 * 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if _, err := NewWriter(&buf, limiter).Write(data); err != nil {
			b.Fatal(err)
		}
	}
}
