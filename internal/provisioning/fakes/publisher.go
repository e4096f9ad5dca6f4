package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/imamik/stackfleet/internal/provisioning"
)

// Publisher records published requests instead of sending them to SNS.
type Publisher struct {
	mu        sync.Mutex
	Published []provisioning.Request

	// Err, when set, is returned from every Publish call.
	Err error
}

// Ensure interface compliance
var _ provisioning.Publisher = (*Publisher)(nil)

// Publish records req.
func (p *Publisher) Publish(_ context.Context, req provisioning.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Published = append(p.Published, req)
	return nil
}

// Requests returns a copy of everything published so far.
func (p *Publisher) Requests() []provisioning.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provisioning.Request(nil), p.Published...)
}

// Sleeps stands in for provisioning.Sleep. It returns at once, still
// honouring cancellation, and records every requested duration.
type Sleeps struct {
	mu        sync.Mutex
	Durations []time.Duration
}

// Sleep implements provisioning.Sleeper.
func (s *Sleeps) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Durations = append(s.Durations, d)
	return ctx.Err()
}

// Count returns the number of sleeps so far.
func (s *Sleeps) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Durations)
}
