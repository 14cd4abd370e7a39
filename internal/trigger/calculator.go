package trigger

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/robfig/cron/v3"
)

// DefaultHorizon bounds the cron search.
const DefaultHorizon = 4 * 365 * 24 * time.Hour

var fieldParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Calculator computes next fire times. It is safe for concurrent use.
type Calculator struct {
	loc          *time.Location
	firstWeekday time.Weekday
	horizon      time.Duration
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithLocation evaluates cron fields in loc.
func WithLocation(loc *time.Location) Option {
	return func(c *Calculator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithFirstWeekday sets the weekday that day_of_week 0 refers to.
func WithFirstWeekday(day time.Weekday) Option {
	return func(c *Calculator) {
		c.firstWeekday = day % 7
	}
}

// WithHorizon overrides DefaultHorizon.
func WithHorizon(d time.Duration) Option {
	return func(c *Calculator) {
		if d > 0 {
			c.horizon = d
		}
	}
}

// NewCalculator returns a Calculator using UTC, Sunday as day 0 and DefaultHorizon
// unless overridden.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		loc:          time.UTC,
		firstWeekday: time.Sunday,
		horizon:      DefaultHorizon,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location returns the zone cron fields are evaluated in.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Validate reports ErrInvalidTrigger for malformed descriptors.
func (c *Calculator) Validate(spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if spec.Cron != nil {
		_, err := c.compile(*spec.Cron)
		return err
	}
	return nil
}

// Next returns the earliest fire time strictly after ref.
func (c *Calculator) Next(spec Spec, ref time.Time) (time.Time, error) {
	if err := spec.Validate(); err != nil {
		return time.Time{}, err
	}
	if spec.Cron == nil {
		return ref.Add(spec.Every), nil
	}

	m, err := c.compile(*spec.Cron)
	if err != nil {
		return time.Time{}, err
	}
	return c.search(m, ref)
}

// mask holds one bit per allowed value of each field.
type mask struct {
	minute, hour, dom, dow uint64
}

func (c *Calculator) compile(f Cron) (mask, error) {
	expr := strings.Join([]string{
		orStar(f.Minute),
		orStar(f.Hour),
		orStar(f.Day),
		"*",
		orStar(f.DayOfWeek),
	}, " ")

	sched, err := fieldParser.Parse(expr)
	if err != nil {
		return mask{}, fmt.Errorf("%w: %s: %v", ErrInvalidTrigger, expr, err)
	}
	spec, ok := sched.(*cron.SpecSchedule)
	if !ok {
		return mask{}, fmt.Errorf("%w: unsupported expression %q", ErrInvalidTrigger, expr)
	}

	dow := spec.Dow
	if !hasLetters(f.DayOfWeek) {
		dow = c.rotateWeekdays(dow)
	}

	return mask{
		minute: spec.Minute,
		hour:   spec.Hour,
		dom:    spec.Dom,
		dow:    dow,
	}, nil
}

// hasLetters reports whether a day_of_week field uses day names, which are
// absolute (SUN is always Sunday) and never rotated.
func hasLetters(field string) bool {
	return strings.IndexFunc(field, unicode.IsLetter) >= 0
}

// rotateWeekdays maps configured day numbers (0 = first weekday) onto time.Weekday bits.
func (c *Calculator) rotateWeekdays(bits uint64) uint64 {
	var out uint64
	for v := 0; v < 7; v++ {
		if bits&(1<<uint(v)) != 0 {
			out |= 1 << uint((int(c.firstWeekday)+v)%7)
		}
	}
	return out
}

func (c *Calculator) search(m mask, ref time.Time) (time.Time, error) {
	ref = ref.In(c.loc)
	// step from the absolute minute; rebuilding an ambiguous wall time would
	// land in the first occurrence of a repeated hour
	t := ref.Truncate(time.Minute).Add(time.Minute).In(c.loc)
	limit := ref.Add(c.horizon)

	for !t.After(limit) {
		if m.dom&(1<<uint(t.Day())) == 0 || m.dow&(1<<uint(t.Weekday())) == 0 {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, c.loc)
			continue
		}
		if m.hour&(1<<uint(t.Hour())) == 0 {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, c.loc)
			continue
		}
		if m.minute&(1<<uint(t.Minute())) == 0 || !t.After(ref) {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("%w: no fire time within %s of %s",
		ErrTriggerUnsatisfiable, c.horizon, ref.Format(time.RFC3339))
}

// ParseWeekday accepts english day names ("sunday", "mon") and returns the weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return time.Sunday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || n == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", name)
}
