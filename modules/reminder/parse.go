package reminder

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const maxDelay = 366 * 24 * time.Hour

var (
	errMissingDelay = errors.New("missing in <N> <unit> clause")
	errMissingText  = errors.New("missing reminder text")
	errDelayTooLong = errors.New("delay too long")

	delayPattern = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(minutes?|hours?|days?)\b`)
	leadingCount = regexp.MustCompile(`^\s*(\d+)`)
)

type reminderRequest struct {
	text   string
	amount int
	unit   string
	delay  time.Duration
}

// parseReminder reads "<text> in <N> <unit>". When the text holds several
// delay clauses the last one is the delay; everything before it is the text.
func parseReminder(input string) (reminderRequest, error) {
	matches := delayPattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return reminderRequest{}, errMissingDelay
	}
	last := matches[len(matches)-1]

	amount, err := strconv.Atoi(input[last[2]:last[3]])
	if err != nil || amount <= 0 {
		return reminderRequest{}, errMissingDelay
	}
	unit := strings.ToLower(input[last[4]:last[5]])

	var step time.Duration
	switch strings.TrimSuffix(unit, "s") {
	case "minute":
		step = time.Minute
	case "hour":
		step = time.Hour
	default:
		step = 24 * time.Hour
	}
	if amount > int(maxDelay/step) {
		return reminderRequest{}, errDelayTooLong
	}

	text := strings.TrimSpace(input[:last[0]])
	if text == "" {
		return reminderRequest{}, errMissingText
	}

	return reminderRequest{
		text:   text,
		amount: amount,
		unit:   unit,
		delay:  time.Duration(amount) * step,
	}, nil
}

// parseTimerMinutes reads the leading positive minute count.
func parseTimerMinutes(input string) (int, bool) {
	match := leadingCount.FindStringSubmatch(input)
	if match == nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(match[1])
	if err != nil || minutes <= 0 || minutes > int(maxDelay/time.Minute) {
		return 0, false
	}

	return minutes, true
}
