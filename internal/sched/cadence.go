package sched

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CadenceKind describes the normalized kind of a cadence string.
type CadenceKind int

const (
	CadenceEveryMinute CadenceKind = iota
	CadenceEveryN
	CadenceHourly
	CadenceDaily
	CadenceCron
)

// Cadence represents a parsed cadence string.
//
// Supported forms:
//   - "minute" / "every-minute": fires every minute
//   - "every:N" or "every:30m": fires when minute-of-hour % N == 0
//   - "hourly" or "hourly:SS": fires at minute 0 (second offset reserved)
//   - "daily:HH:MM": fires once a day
//   - "cron:EXPR", bare 5-field expressions and "@hourly"-style specs
//     (robfig/cron standard parser): fires on the expression's minutes
//
// In every case the job additionally only starts while the current second is
// inside its window.
type Cadence struct {
	Kind CadenceKind

	// EveryN is the minute interval for CadenceEveryN.
	EveryN int

	// OffsetSecond is reserved for sub-window placement of hourly jobs.
	OffsetSecond int

	// Hour and Minute are the daily firing point for CadenceDaily.
	Hour   int
	Minute int

	Expr     string
	schedule cron.Schedule

	Source string // "keyword" | "minutes" | "hhmm" | "cron"
}

var reHHMM = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseCadence parses a cadence string.
func ParseCadence(raw string) (Cadence, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Cadence{}, fmt.Errorf("cadence required")
	}

	low := strings.ToLower(s)
	switch low {
	case "minute", "every-minute", "minutely":
		return Cadence{Kind: CadenceEveryMinute, Source: "keyword"}, nil
	case "hourly":
		return Cadence{Kind: CadenceHourly, Source: "keyword"}, nil
	}

	if strings.HasPrefix(low, "every:") {
		v := strings.TrimSpace(s[len("every:"):])
		n, err := parseMinutes(v)
		if err != nil {
			return Cadence{}, err
		}
		return Cadence{Kind: CadenceEveryN, EveryN: n, Source: "minutes"}, nil
	}
	if strings.HasPrefix(low, "hourly:") {
		v := strings.TrimSpace(s[len("hourly:"):])
		off, err := strconv.Atoi(v)
		if err != nil || off < 0 || off > 59 {
			return Cadence{}, fmt.Errorf("invalid hourly offset %q (want 0..59)", v)
		}
		return Cadence{Kind: CadenceHourly, OffsetSecond: off, Source: "keyword"}, nil
	}
	if strings.HasPrefix(low, "daily:") {
		v := strings.TrimSpace(s[len("daily:"):])
		h, m, err := parseHHMM(v)
		if err != nil {
			return Cadence{}, err
		}
		return Cadence{Kind: CadenceDaily, Hour: h, Minute: m, Source: "hhmm"}, nil
	}
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Cadence{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return parseCron(expr)
	}

	// Heuristic: whitespace or leading '@' means a cron expression.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}

	return Cadence{}, fmt.Errorf(
		"invalid cadence %q (use 'minute', 'every:30m', 'hourly', 'daily:06:45', or a cron expression)",
		raw,
	)
}

func parseCron(expr string) (Cadence, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Cadence{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return Cadence{Kind: CadenceCron, Expr: expr, schedule: sched, Source: "cron"}, nil
}

// parseMinutes accepts a bare integer ("5") or a whole-minute duration ("30m", "2h").
func parseMinutes(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("minute interval required")
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("minute interval must be > 0")
		}
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (use minutes like '5' or a duration like '30m')", v)
	}
	if d <= 0 || d%time.Minute != 0 {
		return 0, fmt.Errorf("interval %q must be a positive whole number of minutes", v)
	}
	return int(d / time.Minute), nil
}

func parseHHMM(v string) (int, int, error) {
	m := reHHMM.FindStringSubmatch(strings.TrimSpace(v))
	if len(m) != 3 {
		return 0, 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	if mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return h, mm, nil
}

func (c Cadence) String() string {
	switch c.Kind {
	case CadenceEveryMinute:
		return "every-minute"
	case CadenceEveryN:
		return fmt.Sprintf("every-%dm", c.EveryN)
	case CadenceHourly:
		return "hourly"
	case CadenceDaily:
		return fmt.Sprintf("daily-%02d:%02d", c.Hour, c.Minute)
	case CadenceCron:
		return "cron(" + c.Expr + ")"
	default:
		return "unknown"
	}
}
