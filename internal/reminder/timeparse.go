package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The recognized time phrases, tried in this order:
//
//	"in N minutes|min|hours|hr"         relative offset from now
//	"at H[:MM][am|pm]"                  next occurrence of that wall-clock time
//	"tomorrow H[:MM][am|pm]"            that wall-clock time, one day out
//
// Anything else falls back to one hour from now.
var (
	relativeRe = regexp.MustCompile(`in (\d+)\s*(minute|min|hour|hr)s?`)
	clockAtRe  = regexp.MustCompile(`at (\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
	clockRe    = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
)

// ParseFireTime extracts an absolute fire time (epoch seconds, local
// wall-clock) from free-form input.
func ParseFireTime(input string, now time.Time) int64 {
	low := strings.ToLower(input)

	if m := relativeRe.FindStringSubmatch(low); m != nil {
		amount, _ := strconv.Atoi(m[1])
		unit := m[2]
		var target time.Time
		if strings.Contains(unit, "hour") || unit == "hr" {
			target = now.Add(time.Duration(amount) * time.Hour)
		} else {
			target = now.Add(time.Duration(amount) * time.Minute)
		}
		return target.Unix()
	}

	if m := clockAtRe.FindStringSubmatch(low); m != nil {
		target := clockToday(now, m[1], m[2], m[3])
		if target.Before(now) {
			target = target.AddDate(0, 0, 1)
		}
		return target.Unix()
	}

	if strings.Contains(low, "tomorrow") {
		if m := clockRe.FindStringSubmatch(low); m != nil {
			target := clockToday(now, m[1], m[2], m[3]).AddDate(0, 0, 1)
			return target.Unix()
		}
	}

	// Default: 1 hour later
	return now.Add(1 * time.Hour).Unix()
}

// clockToday builds today's date at the captured hour/minute/period.
func clockToday(now time.Time, hourStr, minStr, period string) time.Time {
	hour, _ := strconv.Atoi(hourStr)
	minute := 0
	if minStr != "" {
		minute, _ = strconv.Atoi(minStr)
	}

	if period == "pm" && hour != 12 {
		hour += 12
	}
	if period == "am" && hour == 12 {
		hour = 0
	}

	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
}

var (
	timeClauseNumRe  = regexp.MustCompile(`(?i)\b(at|in|on|for|tomorrow|today|tonight)\s+\d+.*`)
	timeClauseWordRe = regexp.MustCompile(`(?i)\b(at|in|on|for|tomorrow|today|tonight)\b.*`)
	leadingToRe      = regexp.MustCompile(`(?i)^to\s+`)
)

// ExtractTask strips the trigger phrase and any trailing time clause from the
// input, leaving the task description.
func ExtractTask(input, trigger string) string {
	task := strings.TrimSpace(strings.ReplaceAll(strings.ToLower(input), trigger, ""))

	task = strings.TrimSpace(timeClauseNumRe.ReplaceAllString(task, ""))
	task = strings.TrimSpace(timeClauseWordRe.ReplaceAllString(task, ""))
	task = strings.TrimSpace(leadingToRe.ReplaceAllString(task, ""))

	// Too aggressive a strip means the clause regexes ate the task itself
	if len(task) < 5 {
		task = strings.TrimSpace(strings.ReplaceAll(input, trigger, ""))
	}

	if task == "" {
		return "reminder"
	}
	return task
}
