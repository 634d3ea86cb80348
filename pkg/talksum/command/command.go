// Package command parses bot-mention command lines into tagged command
// values. The grammar is whitespace-separated tokens after the mention:
//
//	(empty)            summarize the default lookback
//	<duration>         summarize that lookback (e.g. "30m", "3h40m", "1d")
//	add <hour>:<min>   schedule a daily summary
//	list               list the room's scheduled jobs
//	delete <job_id>    delete a scheduled job
//	help               show the command reference
//
// Anything unrecognized parses to Unknown; the dispatcher answers every
// variant, so no command goes unreplied.
package command

import (
	"strconv"
	"strings"
	"time"
)

// Kind tags the parsed command variant.
type Kind int

const (
	// Summarize requests an immediate summary over Lookback.
	Summarize Kind = iota
	// AddJob schedules a daily summary at Hour:Minute.
	AddJob
	// ListJobs lists the caller room's scheduled jobs.
	ListJobs
	// DeleteJob removes the job named by JobID.
	DeleteJob
	// Help requests the command reference.
	Help
	// Unknown is anything that does not match the grammar.
	Unknown
	// Invalid is a recognized verb with malformed arguments; Hint carries
	// the corrective usage text.
	Invalid
)

// Command is one parsed bot command.
type Command struct {
	Kind     Kind
	Lookback time.Duration // Summarize
	Hour     int           // AddJob
	Minute   int           // AddJob
	JobID    string        // DeleteJob
	Hint     string        // Invalid
}

// Corrective usage hints for malformed arguments.
const (
	HintAddUsage      = "Usage: add <hour>:<minute> — both parts must be numeric, e.g. add 17:30"
	HintDeleteMissing = "No job id given — use 'list' to see the scheduled job ids, then 'delete <job_id>'"
)

// reserved verbs cannot be interpreted as durations.
var reserved = map[string]bool{
	"add":    true,
	"list":   true,
	"delete": true,
	"help":   true,
}

// Parse parses the text after the bot mention.
func Parse(text string) Command {
	fields := strings.Fields(text)

	if len(fields) == 0 {
		return Command{Kind: Summarize}
	}

	verb := strings.ToLower(fields[0])
	switch verb {
	case "add":
		if len(fields) < 2 {
			return Command{Kind: Invalid, Hint: HintAddUsage}
		}
		hour, minute, ok := parseClock(fields[1])
		if !ok {
			return Command{Kind: Invalid, Hint: HintAddUsage}
		}
		return Command{Kind: AddJob, Hour: hour, Minute: minute}

	case "list":
		return Command{Kind: ListJobs}

	case "delete":
		if len(fields) < 2 {
			return Command{Kind: Invalid, Hint: HintDeleteMissing}
		}
		return Command{Kind: DeleteJob, JobID: fields[1]}

	case "help":
		return Command{Kind: Help}
	}

	if !reserved[verb] && len(fields) == 1 {
		if d, ok := ParseLookback(fields[0]); ok {
			return Command{Kind: Summarize, Lookback: d}
		}
	}

	return Command{Kind: Unknown}
}

// parseClock splits "hh:mm" into hour and minute. Both components must be
// digits only (Atoi alone would also admit a sign); range validation is the
// scheduler's concern so that the out-of-range reply can name the offending
// time.
func parseClock(s string) (hour, minute int, ok bool) {
	left, right, found := strings.Cut(s, ":")
	if !found || !digits(left) || !digits(right) {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(left)
	minute, _ = strconv.Atoi(right)
	return hour, minute, true
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseLookback parses a duration expression. On top of Go's duration
// syntax it accepts a leading day count ("1d", "2d12h"), which chat users
// expect and time.ParseDuration does not understand.
func ParseLookback(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}

	var days int64
	if i := strings.IndexByte(s, 'd'); i > 0 {
		n, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return 0, false
		}
		days = n
		s = s[i+1:]
	}

	var rest time.Duration
	if s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, false
		}
		rest = d
	}

	total := time.Duration(days)*24*time.Hour + rest
	if total <= 0 {
		return 0, false
	}
	return total, true
}
