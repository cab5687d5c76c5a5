// Package dateparse turns the due-date phrases people type into the
// YYYY-MM-DD form the task API stores.
package dateparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is the wire format for due dates.
const Layout = "2006-01-02"

// ErrUnrecognized is returned for input that is not a known phrase or date.
var ErrUnrecognized = errors.New("unrecognized date")

var (
	isoPattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dayFirstPattern = regexp.MustCompile(`^(\d{1,2})[/.](\d{1,2})[/.](\d{4})$`)
	offsetPattern   = regexp.MustCompile(`^(?:\+|in )(\d+)(?: ?(d|day|days|w|week|weeks|m|month|months))?$`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// Resolve parses input relative to time.Now.
func Resolve(input string) (string, error) {
	return ResolveFrom(input, time.Now())
}

// ResolveFrom parses input relative to now. Accepted forms:
//   - today, tomorrow, yesterday
//   - monday..sunday (next occurrence; same weekday means next week), next <weekday>
//   - next week, next month, eow / end of week (Friday), eom / end of month
//   - +N, +Nd, +Nw, in N days, in N weeks, in N months
//   - YYYY-MM-DD and DD/MM/YYYY, validated against the calendar
//
// The empty string and "none" resolve to "" so a due date can be cleared.
func ResolveFrom(input string, now time.Time) (string, error) {
	in := strings.Join(strings.Fields(strings.ToLower(input)), " ")

	switch in {
	case "", "none":
		return "", nil
	case "today":
		return format(now), nil
	case "tomorrow":
		return format(now.AddDate(0, 0, 1)), nil
	case "yesterday":
		return format(now.AddDate(0, 0, -1)), nil
	case "next week", "nextweek":
		return format(now.AddDate(0, 0, 7)), nil
	case "next month", "nextmonth":
		return format(now.AddDate(0, 1, 0)), nil
	case "eow", "end of week":
		return format(upcoming(now, time.Friday, false)), nil
	case "eom", "end of month":
		return format(lastOfMonth(now)), nil
	}

	if day, ok := weekdays[strings.TrimPrefix(in, "next ")]; ok {
		return format(upcoming(now, day, strings.HasPrefix(in, "next "))), nil
	}

	if m := offsetPattern.FindStringSubmatch(in); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrUnrecognized, input)
		}
		switch m[2] {
		case "w", "week", "weeks":
			return format(now.AddDate(0, 0, 7*n)), nil
		case "m", "month", "months":
			return format(now.AddDate(0, n, 0)), nil
		default:
			return format(now.AddDate(0, 0, n)), nil
		}
	}

	if isoPattern.MatchString(in) {
		t, err := time.Parse(Layout, in)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a calendar date", ErrUnrecognized, input)
		}
		return format(t), nil
	}

	if m := dayFirstPattern.FindStringSubmatch(in); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.Day() != d || int(t.Month()) != mo {
			return "", fmt.Errorf("%w: %q is not a calendar date", ErrUnrecognized, input)
		}
		return format(t), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnrecognized, input)
}

// Valid reports whether input resolves to a date.
func Valid(input string) bool {
	s, err := Resolve(input)
	return err == nil && s != ""
}

func format(t time.Time) string {
	return t.Format(Layout)
}

// upcoming returns the next target weekday strictly after now. With skip set
// ("next friday") it jumps past this week's occurrence unless today is the
// target, in which case both forms land a week out.
func upcoming(now time.Time, target time.Weekday, skip bool) time.Time {
	days := int(target - now.Weekday())
	sameDay := days == 0
	if days <= 0 {
		days += 7
	}
	if skip && !sameDay {
		days += 7
	}
	return now.AddDate(0, 0, days)
}

func lastOfMonth(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -1)
}
