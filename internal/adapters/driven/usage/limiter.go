// Package usage provides an in-process usage limiter that counts tokens
// per day and messages per week for each user.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Limiter implements the interface.
var _ driven.UsageLimiter = (*Limiter)(nil)

// Limits are the quotas enforced per user. Zero disables a limit.
type Limits struct {
	DailyTokens    int
	WeeklyMessages int
}

type counter struct {
	day      string
	tokens   int
	week     string
	messages int
}

// Limiter is an in-memory implementation of driven.UsageLimiter.
// Days and ISO weeks are measured in UTC.
type Limiter struct {
	limits Limits
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

// NewLimiter creates a limiter with the given quotas.
func NewLimiter(limits Limits) *Limiter {
	return &Limiter{
		limits:   limits,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

func key(p domain.Principal) string {
	return p.TenantID + "/" + p.UserID
}

func periods(t time.Time) (day, week string) {
	t = t.UTC()
	y, w := t.ISOWeek()
	return t.Format("2006-01-02"), fmt.Sprintf("%d-W%02d", y, w)
}

// current returns the principal's counter rolled over to now.
// Callers must hold l.mu.
func (l *Limiter) current(p domain.Principal) *counter {
	day, week := periods(l.now())
	c, ok := l.counters[key(p)]
	if !ok {
		c = &counter{day: day, week: week}
		l.counters[key(p)] = c
	}
	if c.day != day {
		c.day, c.tokens = day, 0
	}
	if c.week != week {
		c.week, c.messages = week, 0
	}
	return c
}

// Record accounts for one message exchange that used tokens.
func (l *Limiter) Record(_ context.Context, p domain.Principal, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("%w: negative token count", domain.ErrValidation)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.current(p)
	c.tokens += tokens
	c.messages++
	return nil
}

// Status returns the principal's current usage.
func (l *Limiter) Status(_ context.Context, p domain.Principal) (*domain.UsageStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.current(p)

	status := &domain.UsageStatus{
		TokensUsedToday:    c.tokens,
		DailyTokenLimit:    l.limits.DailyTokens,
		MessagesThisWeek:   c.messages,
		WeeklyMessageLimit: l.limits.WeeklyMessages,
	}
	switch {
	case l.limits.DailyTokens > 0 && c.tokens >= l.limits.DailyTokens:
		status.Exceeded = true
		status.Reason = fmt.Sprintf("daily token limit of %d reached", l.limits.DailyTokens)
	case l.limits.WeeklyMessages > 0 && c.messages >= l.limits.WeeklyMessages:
		status.Exceeded = true
		status.Reason = fmt.Sprintf("weekly message limit of %d reached", l.limits.WeeklyMessages)
	}
	return status, nil
}
