package providertest

import (
	"context"
	"sync"
	"time"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

type Notifier struct {
	mu   sync.Mutex
	Sent []domain.Notification
}

func (n *Notifier) Notify(_ context.Context, note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, note)
}

// Topics lists the topics sent so far, in order.
func (n *Notifier) Topics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.Sent))
	for i, s := range n.Sent {
		out[i] = s.Topic
	}
	return out
}

type Clock struct {
	mu sync.Mutex
	T  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{T: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.T
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.T = c.T.Add(d)
}
