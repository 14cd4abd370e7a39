// Package trigger computes fire times for job triggers.
// A trigger is either a cron descriptor (minute, hour, day of month and
// day of week, each defaulting to "every value") or a fixed interval.
package trigger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTrigger is returned for malformed descriptors.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrTriggerUnsatisfiable is returned when no fire time exists within the search horizon.
	ErrTriggerUnsatisfiable = errors.New("trigger unsatisfiable")
)

// Kind names the trigger variant.
type Kind string

const (
	KindCron     Kind = "cron"
	KindInterval Kind = "interval"
)

// Cron holds cron fields in crontab syntax ("5", "*/15", "1-5", "MON,WED").
// Empty fields match every value.
type Cron struct {
	Minute    string `json:"minute,omitempty"`
	Hour      string `json:"hour,omitempty"`
	Day       string `json:"day,omitempty"` // day of month
	DayOfWeek string `json:"day_of_week,omitempty"`
}

// Spec is a trigger descriptor. Exactly one of Cron or Every must be set.
type Spec struct {
	Cron  *Cron         `json:"cron,omitempty"`
	Every time.Duration `json:"every,omitempty"`
}

// CronTrigger builds a cron Spec.
func CronTrigger(c Cron) Spec {
	return Spec{Cron: &c}
}

// IntervalTrigger builds an interval Spec.
func IntervalTrigger(every time.Duration) Spec {
	return Spec{Every: every}
}

// Kind reports which variant is set. Invalid specs report an empty kind.
func (s Spec) Kind() Kind {
	switch {
	case s.Cron != nil && s.Every == 0:
		return KindCron
	case s.Cron == nil && s.Every != 0:
		return KindInterval
	default:
		return ""
	}
}

// Validate checks that exactly one variant is set and the interval is positive.
// Cron field syntax is checked by Calculator.Validate.
func (s Spec) Validate() error {
	if s.Cron != nil && s.Every != 0 {
		return fmt.Errorf("%w: both cron and interval are set", ErrInvalidTrigger)
	}
	if s.Cron == nil && s.Every == 0 {
		return fmt.Errorf("%w: neither cron nor interval is set", ErrInvalidTrigger)
	}
	if s.Cron == nil && s.Every < 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidTrigger, s.Every)
	}
	return nil
}

// String renders the trigger for listings.
func (s Spec) String() string {
	switch s.Kind() {
	case KindInterval:
		return "interval[" + s.Every.String() + "]"
	case KindCron:
		parts := []string{
			"minute=" + orStar(s.Cron.Minute),
			"hour=" + orStar(s.Cron.Hour),
			"day=" + orStar(s.Cron.Day),
			"day_of_week=" + orStar(s.Cron.DayOfWeek),
		}
		return "cron[" + strings.Join(parts, " ") + "]"
	default:
		return "invalid"
	}
}

func orStar(field string) string {
	if strings.TrimSpace(field) == "" {
		return "*"
	}
	return field
}
