// Package duration classifies infusion lengths into the ordered buckets used
// for capacity planning and protocol grouping.
package duration

import (
	"strconv"
	"strings"
)

// Bucket is an infusion duration group.
type Bucket string

const (
	Undefined Bucket = "undefined"
	Rapid     Bucket = "rapid"
	Medium    Bucket = "medium"
	Long      Bucket = "long"
	ExtraLong Bucket = "extra_long"
)

// Upper bounds (inclusive) in minutes.
const (
	RapidMaxMinutes  = 30
	MediumMaxMinutes = 120
	LongMaxMinutes   = 240
)

const minutesPerDay = 24 * 60

// Buckets lists the defined buckets from shortest to longest.
var Buckets = []Bucket{Rapid, Medium, Long, ExtraLong}

var labels = map[Bucket]string{
	Rapid:     "Rápida",
	Medium:    "Média",
	Long:      "Longa",
	ExtraLong: "Extra Longa",
	Undefined: "-",
}

// Classify maps minutes to a bucket.
func Classify(minutes int) Bucket {
	switch {
	case minutes <= 0:
		return Undefined
	case minutes <= RapidMaxMinutes:
		return Rapid
	case minutes <= MediumMaxMinutes:
		return Medium
	case minutes <= LongMaxMinutes:
		return Long
	default:
		return ExtraLong
	}
}

// Label is the display name of the bucket.
func (b Bucket) Label() string {
	if l, ok := labels[b]; ok {
		return l
	}
	return labels[Undefined]
}

// Valid reports whether b is one of the defined buckets.
func (b Bucket) Valid() bool {
	_, ok := labels[b]
	return ok && b != Undefined
}

// OrDefault returns fallback when b is undefined.
func (b Bucket) OrDefault(fallback Bucket) Bucket {
	if b == Undefined || b == "" {
		return fallback
	}
	return b
}

// Provider yields a duration in minutes. A result <= 0 means unknown.
type Provider interface {
	Minutes() int
}

// ProtocolMinutes is the total infusion time authored on a protocol.
type ProtocolMinutes int

func (p ProtocolMinutes) Minutes() int { return int(p) }

// TimeRange is the scheduled start/end pair of an appointment, "HH:MM".
type TimeRange struct {
	Start string
	End   string
}

// Minutes returns end minus start, or 0 when either side does not parse.
// An end before the start crosses midnight.
func (r TimeRange) Minutes() int {
	start, ok := ParseClock(r.Start)
	if !ok {
		return 0
	}
	end, ok := ParseClock(r.End)
	if !ok {
		return 0
	}
	if end < start {
		end += minutesPerDay
	}
	return end - start
}

// Resolve classifies the first provider with a positive duration. Callers
// order providers by preference, usually the protocol time first.
func Resolve(providers ...Provider) Bucket {
	for _, p := range providers {
		if p == nil {
			continue
		}
		if m := p.Minutes(); m > 0 {
			return Classify(m)
		}
	}
	return Undefined
}

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// FormatClock converts minutes after midnight into "HH:MM", wrapping at 24h.
func FormatClock(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	h, m := minutes/60, minutes%60
	return twoDigits(h) + ":" + twoDigits(m)
}

// AddMinutes shifts an "HH:MM" clock. The input is returned unchanged when it
// does not parse.
func AddMinutes(clock string, minutes int) string {
	base, ok := ParseClock(clock)
	if !ok {
		return clock
	}
	return FormatClock(base + minutes)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
