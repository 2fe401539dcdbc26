package ledger

import (
	"sync"
	"time"
)

// PeriodClock supplies the current allowance period identifier.
// The services never read the wall clock to decide allowance eligibility.
type PeriodClock interface {
	CurrentPeriod() string
}

// MonthlyClock turns a time source into calendar-month periods like "2024-03".
type MonthlyClock struct {
	Now func() time.Time
}

func (c MonthlyClock) CurrentPeriod() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return now().UTC().Format("2006-01")
}

// FixedPeriod is a clock that always reports the same period.
type FixedPeriod string

func (p FixedPeriod) CurrentPeriod() string { return string(p) }

// stamper hands out non-decreasing timestamps for ledger entries, even if the
// time source goes backwards.
type stamper struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newStamper(now func() time.Time) *stamper {
	if now == nil {
		now = time.Now
	}
	return &stamper{now: now}
}

func (s *stamper) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}
