// Package constants contains the text messages and build defaults shared by
// the ytharvest command line.
package constants

// Config messages
const (
	// MsgConfigLoadError is the error message when configuration loading fails.
	MsgConfigLoadError = "failed to load configuration: %w"

	// MsgConfigValidationError is the message when configuration validation fails.
	MsgConfigValidationError = "configuration validation failed:\n"

	// MsgConfigValidatePrefix is the prefix for configuration validation errors.
	MsgConfigValidatePrefix = "  - %v\n"
)

// Job messages
const (
	// MsgJobAdded is the success message when a job is added.
	MsgJobAdded = "Job added: %s\n"

	// MsgJobExists is printed when an added job id is already stored.
	MsgJobExists = "Job %s already exists, keeping the stored one\n"

	// MsgJobRemoved is the success message when a job is removed.
	MsgJobRemoved = "Job %s removed\n"

	// MsgJobPaused is the success message when a job is paused.
	MsgJobPaused = "Job %s paused\n"

	// MsgJobResumed is the success message when a job is resumed.
	MsgJobResumed = "Job %s resumed\n"

	// MsgJobNotFoundHint is the hint when a job is not found.
	MsgJobNotFoundHint = "Use 'ytharvest list' to see all jobs\n"

	// MsgJobStartNote is printed after add when the scheduler is not running.
	MsgJobStartNote = "Run 'ytharvest start' to schedule it\n"
)

// Run messages
const (
	// MsgRunSucceeded reports a successful manual run.
	MsgRunSucceeded = "Job %s finished: %d record(s), %d comment record(s) via %s in %d attempt(s)\n"

	// MsgRunFailed reports a failed manual run.
	MsgRunFailed = "Job %s failed after %d attempt(s): %s\n"
)

// Jobs list messages
const (
	// MsgJobsListHeader is the header of the jobs table.
	MsgJobsListHeader = "ID\tTYPE\tTARGET\tTRIGGER\tSTATUS\tNEXT RUN\tLAST RUN\tLAST OUTCOME\n"

	// MsgJobsListRow is one row of the jobs table.
	MsgJobsListRow = "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n"

	// MsgJobsTotal is the message showing the total count of jobs.
	MsgJobsTotal = "Total: %d job(s)\n"

	// MsgJobsNotFound is the message when no jobs are found.
	MsgJobsNotFound = "No scheduled jobs found.\n"
)
