package verify

import (
	"sync"
	"time"
)

// countdown tracks the resend cooldown as a deadline rather than a
// decrementing counter, so readers always see the true remaining time
// without a ticker.
type countdown struct {
	mu       sync.Mutex
	deadline time.Time
}

func (c *countdown) start(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = time.Now().Add(d)
}

func (c *countdown) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = time.Time{}
}

func (c *countdown) remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deadline.IsZero() {
		return 0
	}
	d := time.Until(c.deadline)
	if d < 0 {
		return 0
	}
	return d
}
