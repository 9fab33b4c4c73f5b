// Package reminder decides which unpaid invoices are due a reminder and
// sends them on each scheduler tick.
package reminder

import (
	"time"

	invoicedomain "github.com/Nikjeremic/uptiomio/internal/invoice/domain"
)

type Policy string

const (
	// PolicyDaily sends once per calendar day at the configured hh:mm.
	PolicyDaily Policy = "daily"
	// PolicyInterval sends when intervalDays have elapsed since the last reminder.
	PolicyInterval Policy = "interval"
)

const (
	ReasonPaid         = "paid"
	ReasonDisabled     = "disabled"
	ReasonSentToday    = "sent_today"
	ReasonBeforeTarget = "before_target"
	ReasonNeverSent    = "never_sent"
	ReasonIntervalDue  = "interval_elapsed"
	ReasonNotYetDue    = "interval_not_elapsed"
	ReasonTargetPassed = "target_passed"
)

type Decision struct {
	Send   bool
	Policy Policy
	Reason string
}

// SelectPolicy picks daily only when both hour and minute are set and the
// interval is exactly one day.
func SelectPolicy(cfg invoicedomain.ReminderConfig) Policy {
	if cfg.Hour != nil && cfg.Minute != nil && cfg.IntervalDays == 1 {
		return PolicyDaily
	}
	return PolicyInterval
}

// ShouldSend is the pure "is it due" check. Daily targets are computed in
// now's location.
func ShouldSend(inv invoicedomain.Invoice, now time.Time) Decision {
	cfg := inv.ReminderConfig()
	policy := SelectPolicy(cfg)
	if inv.IsPaid {
		return Decision{Policy: policy, Reason: ReasonPaid}
	}
	if !cfg.Enabled {
		return Decision{Policy: policy, Reason: ReasonDisabled}
	}

	if policy == PolicyDaily {
		return daily(*cfg.Hour, *cfg.Minute, inv.LastReminderAt, now)
	}
	return interval(cfg.IntervalDays, inv.LastReminderAt, now)
}

func daily(hour, minute int, last *time.Time, now time.Time) Decision {
	y, m, d := now.Date()
	loc := now.Location()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, loc)
	target := time.Date(y, m, d, hour, minute, 0, 0, loc)

	if last != nil && !last.Before(startOfDay) {
		return Decision{Policy: PolicyDaily, Reason: ReasonSentToday}
	}
	if now.Before(target) {
		return Decision{Policy: PolicyDaily, Reason: ReasonBeforeTarget}
	}
	return Decision{Send: true, Policy: PolicyDaily, Reason: ReasonTargetPassed}
}

func interval(days int, last *time.Time, now time.Time) Decision {
	if days < 1 {
		days = 1
	}
	if last == nil {
		return Decision{Send: true, Policy: PolicyInterval, Reason: ReasonNeverSent}
	}
	if now.Sub(*last) >= time.Duration(days)*24*time.Hour {
		return Decision{Send: true, Policy: PolicyInterval, Reason: ReasonIntervalDue}
	}
	return Decision{Policy: PolicyInterval, Reason: ReasonNotYetDue}
}
