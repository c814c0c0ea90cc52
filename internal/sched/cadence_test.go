package sched

import (
	"testing"
)

func TestParseCadenceVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		kind   CadenceKind
		source string
		everyN int
		hour   int
		minute int
	}{
		{name: "minute keyword", raw: "minute", kind: CadenceEveryMinute, source: "keyword"},
		{name: "every-minute keyword", raw: "every-minute", kind: CadenceEveryMinute, source: "keyword"},
		{name: "every N bare", raw: "every:5", kind: CadenceEveryN, source: "minutes", everyN: 5},
		{name: "every N duration", raw: "every:30m", kind: CadenceEveryN, source: "minutes", everyN: 30},
		{name: "every N hours", raw: "every:2h", kind: CadenceEveryN, source: "minutes", everyN: 120},
		{name: "hourly", raw: "hourly", kind: CadenceHourly, source: "keyword"},
		{name: "hourly offset", raw: "hourly:30", kind: CadenceHourly, source: "keyword"},
		{name: "daily", raw: "daily:06:45", kind: CadenceDaily, source: "hhmm", hour: 6, minute: 45},
		{name: "cron prefixed", raw: "cron:*/5 * * * *", kind: CadenceCron, source: "cron"},
		{name: "cron bare", raw: "0 0 * * *", kind: CadenceCron, source: "cron"},
		{name: "cron descriptor", raw: "@hourly", kind: CadenceCron, source: "cron"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCadence(tt.raw)
			if err != nil {
				t.Fatalf("ParseCadence(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == CadenceEveryN && got.EveryN != tt.everyN {
				t.Fatalf("EveryN = %d, want %d", got.EveryN, tt.everyN)
			}
			if tt.kind == CadenceDaily && (got.Hour != tt.hour || got.Minute != tt.minute) {
				t.Fatalf("daily = %02d:%02d, want %02d:%02d", got.Hour, got.Minute, tt.hour, tt.minute)
			}
		})
	}
}

func TestParseCadenceInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"",
		"not-a-cadence",
		"every:0",
		"every:90s",
		"hourly:77",
		"daily:24:00",
		"daily:06:61",
		"cron:",
		"cron:bad bad",
	} {
		if _, err := ParseCadence(raw); err == nil {
			t.Fatalf("ParseCadence(%q): expected error", raw)
		}
	}
}
