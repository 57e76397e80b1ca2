package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	// Zone lookups must not depend on the host's zoneinfo.
	_ "time/tzdata"
)

const dayLayout = "2006-01-02"

// Layouts carrying an explicit offset. Postgres renders timestamptz::text
// as "2024-05-01 23:00:00+00" under DateStyle ISO, hence the short Z07
// forms. Other DateStyles and seconds-precision offsets are rejected.
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999Z07",
}

// Layouts without an offset; these are read in the storage zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseInstant turns a stored timestamp into an absolute instant. Values
// without an offset are taken to be wall-clock times in storage.
func ParseInstant(raw string, storage *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTimestamp)
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if storage == nil {
		storage = time.UTC
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, storage); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

// LocalTime is an instant viewed in the target zone.
type LocalTime struct {
	Instant     time.Time `json:"at"`
	Day         Day       `json:"day"`
	Hour        int       `json:"hour"`
	MinuteOfDay int       `json:"minute_of_day"`
}

// Clock formats the local wall-clock time as HH:MM.
func (l LocalTime) Clock() string {
	return l.Instant.Format("15:04")
}

// Normalize converts t into loc. This is the only place day and hour
// membership is derived from an instant.
func Normalize(t time.Time, loc *time.Location) LocalTime {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return LocalTime{
		Instant:     lt,
		Day:         DayOf(lt),
		Hour:        lt.Hour(),
		MinuteOfDay: lt.Hour()*60 + lt.Minute(),
	}
}

// Day is a calendar date with no zone attached.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar date of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, strings.TrimSpace(s))
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return DayOf(t), nil
}

func (d Day) IsZero() bool { return d == Day{} }

// Start returns local midnight of d in loc.
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var fixedZoneRe = regexp.MustCompile(`^(?i:utc|gmt)?([+-])(\d{1,2})(?::?(\d{2}))?$`)

// LoadZone resolves an IANA name ("Asia/Ho_Chi_Minh") or a fixed offset
// ("UTC+7", "+07:00").
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	if m := fixedZoneRe.FindStringSubmatch(name); m != nil {
		h, _ := strconv.Atoi(m[2])
		mins := 0
		if m[3] != "" {
			mins, _ = strconv.Atoi(m[3])
		}
		if h > 14 || mins > 59 {
			return nil, fmt.Errorf("offset out of range: %s", name)
		}
		secs := h*3600 + mins*60
		if m[1] == "-" {
			secs = -secs
		}
		return time.FixedZone(strings.ToUpper(name), secs), nil
	}
	return time.LoadLocation(name)
}
