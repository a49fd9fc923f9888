package mail

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// SimSender fakes a provider for demos and load tests: it succeeds with a
// configured probability and otherwise returns a transient rejection.
type SimSender struct {
	SuccessRate float64 // 0.0..1.0
	Latency     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimSender returns a SimSender seeded from the clock.
func NewSimSender(successRate float64, latency time.Duration) *SimSender {
	return &SimSender{
		SuccessRate: successRate,
		Latency:     latency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SimSender) Send(ctx context.Context, _ Message) error {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return Transient(ctx.Err())
		}
	}
	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()
	if roll < s.SuccessRate {
		return nil
	}
	return Transient(errors.New("simulated provider rejection"))
}
