package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/retrieval"
	"github.com/aatumaykin/ytharvest/internal/trigger"
	"github.com/aatumaykin/ytharvest/internal/youtube"
)

// Schedule types accepted in schedule_type.
const (
	ScheduleInterval = "interval"
	ScheduleCron     = "cron"
)

// DefaultInterval is used by jobs that give no schedule at all.
const DefaultInterval = 24 * time.Hour

// Duration sums the interval units.
func (i IntervalConfig) Duration() time.Duration {
	return time.Duration(i.Weeks)*7*24*time.Hour +
		time.Duration(i.Days)*24*time.Hour +
		time.Duration(i.Hours)*time.Hour +
		time.Duration(i.Minutes)*time.Minute +
		time.Duration(i.Seconds)*time.Second
}

// Set assigns value to the named unit ("weeks", "days", "hours", "minutes"
// or "seconds"; singular forms are accepted too).
func (i *IntervalConfig) Set(unit string, value int) error {
	if value < 0 {
		return fmt.Errorf("interval value must be >= 0, got %d", value)
	}
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s") {
	case "week":
		i.Weeks = value
	case "day":
		i.Days = value
	case "hour":
		i.Hours = value
	case "minute":
		i.Minutes = value
	case "second":
		i.Seconds = value
	default:
		return fmt.Errorf("unknown interval unit %q (expected: weeks, days, hours, minutes, seconds)", unit)
	}
	return nil
}

func (c CronConfig) empty() bool {
	return c == CronConfig{}
}

// Target returns the raw target field matching the job type.
func (j JobConfig) Target() string {
	switch strings.ToLower(j.Type) {
	case string(jobs.KindChannel):
		return j.ChannelID
	case string(jobs.KindVideo):
		return j.VideoID
	case string(jobs.KindPlaylist):
		return j.PlaylistID
	case string(jobs.KindSearch):
		return j.Query
	default:
		return ""
	}
}

// Spec converts the job into a jobs.Spec created at now. Targets given as
// URLs are reduced to ids. A job without a schedule runs daily; a cron job
// without fields runs at 00:00. Comments default to on for video jobs only.
func (j JobConfig) Spec(now time.Time) (jobs.Spec, error) {
	kind, err := jobs.ParseKind(j.Type)
	if err != nil {
		return jobs.Spec{}, err
	}

	target, err := youtube.NormalizeTarget(retrieval.Target(kind), j.Target())
	if err != nil {
		return jobs.Spec{}, fmt.Errorf("%w: %v", jobs.ErrInvalidJob, err)
	}

	trig, err := j.trigger()
	if err != nil {
		return jobs.Spec{}, err
	}

	includeComments := kind == jobs.KindVideo
	if j.IncludeComments != nil {
		includeComments = *j.IncludeComments
	}

	id := strings.TrimSpace(j.ID)
	if id == "" {
		id = jobs.DefaultID(kind, target, now)
	}

	spec := jobs.Spec{
		ID:              id,
		Kind:            kind,
		Target:          target,
		IncludeComments: includeComments,
		MaxResults:      j.MaxResults,
		Trigger:         trig,
		CreatedAt:       now,
	}
	if err := spec.Validate(); err != nil {
		return jobs.Spec{}, err
	}
	return spec, nil
}

func (j JobConfig) trigger() (trigger.Spec, error) {
	scheduleType := strings.ToLower(j.ScheduleType)
	if scheduleType == "" {
		scheduleType = ScheduleInterval
		if !j.Cron.empty() {
			scheduleType = ScheduleCron
		}
	}

	switch scheduleType {
	case ScheduleInterval:
		every := j.Interval.Duration()
		if every == 0 {
			every = DefaultInterval
		}
		return trigger.IntervalTrigger(every), nil
	case ScheduleCron:
		c := j.Cron
		if c.empty() {
			c = CronConfig{Minute: "0", Hour: "0"}
		}
		return trigger.CronTrigger(trigger.Cron{
			Minute:    c.Minute,
			Hour:      c.Hour,
			Day:       c.Day,
			DayOfWeek: c.DayOfWeek,
		}), nil
	default:
		return trigger.Spec{}, fmt.Errorf("%w: unknown schedule_type %q", trigger.ErrInvalidTrigger, j.ScheduleType)
	}
}

// JobSpecs converts every configured job. It stops at the first invalid job.
func (c *Config) JobSpecs(now time.Time) ([]jobs.Spec, error) {
	specs := make([]jobs.Spec, 0, len(c.Jobs))
	for i, j := range c.Jobs {
		spec, err := j.Spec(now)
		if err != nil {
			return nil, fmt.Errorf("jobs[%d]: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
