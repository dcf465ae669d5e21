package scheduler

import (
	"fmt"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"
)

var dailyTime = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextDue computes the first firing after the given instant. A schedule is
// either "HH:MM" (daily at that UTC time) or a five-field cron expression.
func NextDue(schedule string, after time.Time) (time.Time, error) {
	if m := dailyTime.FindStringSubmatch(schedule); m != nil {
		hour := atoi2(m[1])
		minute := atoi2(m[2])
		if hour > 23 || minute > 59 {
			return time.Time{}, fmt.Errorf("invalid daily time %q", schedule)
		}
		after = after.UTC()
		next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, time.UTC)
		if !next.After(after) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil
	}

	spec, err := cronParser.Parse(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return spec.Next(after.UTC()), nil
}

func atoi2(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
