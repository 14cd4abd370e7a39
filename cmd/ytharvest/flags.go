package main

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ytharvest/internal/config"
	"github.com/aatumaykin/ytharvest/internal/jobs"
)

var errNoTarget = errors.New("exactly one of --channel, --video, --playlist or --search is required")

// jobFlags holds the flags that describe one job on the command line.
type jobFlags struct {
	channel  string
	video    string
	playlist string
	search   string

	comments   bool
	maxResults int
	jobID      string

	scheduleType  string
	intervalUnit  string
	intervalValue int

	cronMinute    string
	cronHour      string
	cronDay       string
	cronDayOfWeek string
}

func addJobFlags(cmd *cobra.Command, f *jobFlags) {
	fs := cmd.Flags()
	fs.StringVar(&f.channel, "channel", "", "Channel id or URL")
	fs.StringVar(&f.video, "video", "", "Video id or URL")
	fs.StringVar(&f.playlist, "playlist", "", "Playlist id or URL")
	fs.StringVar(&f.search, "search", "", "Search query")

	fs.BoolVar(&f.comments, "comments", false, "Also fetch comments (default: on for video jobs)")
	fs.IntVar(&f.maxResults, "max-results", 0, "Maximum records per fetch (default: scraper.max_results)")
	fs.StringVar(&f.jobID, "job-id", "", "Job id (default: <type>_<target>_<timestamp>)")

	fs.StringVar(&f.scheduleType, "schedule-type", config.ScheduleInterval, "Schedule type: interval or cron")
	fs.StringVar(&f.intervalUnit, "interval-unit", "days", "Interval unit: weeks, days, hours, minutes or seconds")
	fs.IntVar(&f.intervalValue, "interval-value", 1, "Interval value")

	fs.StringVar(&f.cronMinute, "cron-minute", "0", "Cron minute field")
	fs.StringVar(&f.cronHour, "cron-hour", "0", "Cron hour field")
	fs.StringVar(&f.cronDay, "cron-day", "*", "Cron day-of-month field")
	fs.StringVar(&f.cronDayOfWeek, "cron-day-of-week", "*", "Cron day-of-week field")
}

// hasTarget reports whether any target flag was given.
func (f *jobFlags) hasTarget() bool {
	return f.channel != "" || f.video != "" || f.playlist != "" || f.search != ""
}

// jobConfig converts the flags into a job definition. commentsSet tells
// whether --comments was given explicitly.
func (f *jobFlags) jobConfig(commentsSet bool) (config.JobConfig, error) {
	job := config.JobConfig{
		ID:           f.jobID,
		MaxResults:   f.maxResults,
		ScheduleType: f.scheduleType,
		Cron: config.CronConfig{
			Minute:    f.cronMinute,
			Hour:      f.cronHour,
			Day:       f.cronDay,
			DayOfWeek: f.cronDayOfWeek,
		},
	}

	targets := 0
	for kind, value := range map[jobs.Kind]string{
		jobs.KindChannel:  f.channel,
		jobs.KindVideo:    f.video,
		jobs.KindPlaylist: f.playlist,
		jobs.KindSearch:   f.search,
	} {
		if value == "" {
			continue
		}
		targets++
		job.Type = string(kind)
		switch kind {
		case jobs.KindChannel:
			job.ChannelID = value
		case jobs.KindVideo:
			job.VideoID = value
		case jobs.KindPlaylist:
			job.PlaylistID = value
		case jobs.KindSearch:
			job.Query = value
		}
	}
	if targets != 1 {
		return config.JobConfig{}, errNoTarget
	}

	if commentsSet {
		comments := f.comments
		job.IncludeComments = &comments
	}

	if !strings.EqualFold(job.ScheduleType, config.ScheduleCron) {
		if err := job.Interval.Set(f.intervalUnit, f.intervalValue); err != nil {
			return config.JobConfig{}, err
		}
	}
	return job, nil
}

// spec builds the job spec created at now.
func (f *jobFlags) spec(cmd *cobra.Command, now time.Time) (jobs.Spec, error) {
	job, err := f.jobConfig(cmd.Flags().Changed("comments"))
	if err != nil {
		return jobs.Spec{}, err
	}
	return job.Spec(now)
}
