package effect

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrOnCooldown matches every *CooldownError.
var ErrOnCooldown = errors.New("on cooldown")

// CooldownError reports how long until an action is available again.
type CooldownError struct {
	Action    string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s on cooldown: %s remaining", e.Action, FormatRemaining(e.Remaining))
}

// Is lets errors.Is(err, ErrOnCooldown) match.
func (e *CooldownError) Is(target error) bool {
	return target == ErrOnCooldown
}

// FormatRemaining renders a duration rounded up to whole seconds, e.g. "4m 3s".
func FormatRemaining(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// Cooldown is a fixed-period rate limit per key.
type Cooldown[K comparable] struct {
	action string
	period time.Duration
	reg    *Registry[K]
}

// NewCooldown creates a cooldown named action lasting period.
func NewCooldown[K comparable](action string, period time.Duration) *Cooldown[K] {
	return &Cooldown[K]{
		action: action,
		period: period,
		reg:    NewRegistry[K](DefaultCapacity, period+time.Minute),
	}
}

// Check returns a *CooldownError if key is still cooling down at now.
func (c *Cooldown[K]) Check(key K, now time.Time) error {
	if active, remaining := c.reg.Active(key, now); active {
		return &CooldownError{Action: c.action, Remaining: remaining}
	}
	return nil
}

// Start begins the cooldown for key at now.
func (c *Cooldown[K]) Start(key K, now time.Time) {
	c.reg.Set(key, now, c.period)
}

// Reset clears the cooldown for key.
func (c *Cooldown[K]) Reset(key K) {
	c.reg.Remove(key)
}

// Period returns the configured length.
func (c *Cooldown[K]) Period() time.Duration {
	return c.period
}
