package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Settings sampling parameters shared by every provider
type Settings struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultOllamaModel = "llama3.2:1b"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 300
)

// WithDefaults fills Model and MaxTokens when unset; a zero Temperature is
// a valid greedy setting and passes through
func (s Settings) WithDefaults(model string) Settings {
	if s.Model == "" {
		s.Model = model
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	return s
}

// Throttle bounds concurrent model calls and spaces them out
type Throttle struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// NewThrottle allows at most concurrency calls in flight, one start per interval
func NewThrottle(concurrency int, interval time.Duration) *Throttle {
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{
		sem:     make(chan struct{}, concurrency),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// DefaultThrottle three calls in flight, 350ms apart
func DefaultThrottle() *Throttle {
	return NewThrottle(3, 350*time.Millisecond)
}

// Acquire blocks until a slot is free; call release when the request is done
func (t *Throttle) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := t.limiter.Wait(ctx); err != nil {
		<-t.sem
		return nil, err
	}

	return func() { <-t.sem }, nil
}
