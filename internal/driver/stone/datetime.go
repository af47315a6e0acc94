package stone

import (
	"fmt"
	"time"
)

// DateTimeBCDSize is the length of the RTC buffer: YY MM DD WW HH MM SS.
const DateTimeBCDSize = 7

const yearEpoch = 2000

// DateTime is a calendar date-time limited to what the display RTC can hold.
//
// Every setter saturates its input into the field's range instead of
// rejecting it, so a DateTime is always representable on the device.
type DateTime struct {
	year   byte // offset from 2000
	month  byte
	day    byte
	week   byte
	hour   byte
	minute byte
	second byte
}

// NewDate returns a date at midnight with week 0 (the display derives it).
func NewDate(year, month, day int) DateTime {
	return NewDateTime(year, month, day, 0, 0, 0, 0)
}

// NewDateTime returns a fully specified date-time, clamping every field.
func NewDateTime(year, month, day int, week byte, hour, minute, second int) DateTime {
	var dt DateTime
	dt.SetYear(year)
	dt.SetMonth(month)
	dt.SetWeek(week)
	dt.SetDay(day)
	dt.SetHour(hour)
	dt.SetMinute(minute)
	dt.SetSecond(second)
	return dt
}

// DefaultDateTime returns 2000-01-01 00:00:00.
func DefaultDateTime() DateTime {
	return NewDate(yearEpoch, 1, 1)
}

// FromTime converts t, using its weekday (Sunday = 0) as the week field.
func FromTime(t time.Time) DateTime {
	return NewDateTime(t.Year(), int(t.Month()), t.Day(), byte(t.Weekday()),
		t.Hour(), t.Minute(), t.Second())
}

// DateTimeFromBCD decodes a 7-byte RTC buffer.
func DateTimeFromBCD(buf []byte) (DateTime, error) {
	dt := DefaultDateTime()
	err := dt.SetFromBCD(buf)
	return dt, err
}

func (dt DateTime) Year() int   { return yearEpoch + int(dt.year) }
func (dt DateTime) Month() int  { return int(dt.month) }
func (dt DateTime) Day() int    { return int(dt.day) }
func (dt DateTime) Week() byte  { return dt.week }
func (dt DateTime) Hour() int   { return int(dt.hour) }
func (dt DateTime) Minute() int { return int(dt.minute) }
func (dt DateTime) Second() int { return int(dt.second) }

func (dt *DateTime) SetYear(y int)   { dt.year = clamp(y-yearEpoch, 0, 99) }
func (dt *DateTime) SetMonth(m int)  { dt.month = clamp(m, 1, 12) }
func (dt *DateTime) SetDay(d int)    { dt.day = clamp(d, 1, 31) }
func (dt *DateTime) SetWeek(w byte)  { dt.week = w }
func (dt *DateTime) SetHour(h int)   { dt.hour = clamp(h, 0, 23) }
func (dt *DateTime) SetMinute(m int) { dt.minute = clamp(m, 0, 59) }
func (dt *DateTime) SetSecond(s int) { dt.second = clamp(s, 0, 59) }

// BCD encodes the value in RTC register order.
func (dt DateTime) BCD() [DateTimeBCDSize]byte {
	return [DateTimeBCDSize]byte{
		EncodeBCD(dt.year),
		EncodeBCD(dt.month),
		EncodeBCD(dt.day),
		EncodeBCD(dt.week),
		EncodeBCD(dt.hour),
		EncodeBCD(dt.minute),
		EncodeBCD(dt.second),
	}
}

// SetFromBCD decodes buf through the setters, so corrupt digits still yield
// a clamped value.
func (dt *DateTime) SetFromBCD(buf []byte) error {
	if len(buf) < DateTimeBCDSize {
		return fmt.Errorf("%w: got %d bytes", ErrShortBuffer, len(buf))
	}
	dt.SetYear(yearEpoch + int(DecodeBCD(buf[0])))
	dt.SetMonth(int(DecodeBCD(buf[1])))
	dt.SetDay(int(DecodeBCD(buf[2])))
	dt.SetWeek(DecodeBCD(buf[3]))
	dt.SetHour(int(DecodeBCD(buf[4])))
	dt.SetMinute(int(DecodeBCD(buf[5])))
	dt.SetSecond(int(DecodeBCD(buf[6])))
	return nil
}

// Time converts to a time.Time in loc. Days past the end of the month
// roll over the way time.Date normalises them.
func (dt DateTime) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(dt.Year(), time.Month(dt.month), int(dt.day),
		int(dt.hour), int(dt.minute), int(dt.second), 0, loc)
}

func (dt DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d (week %d)",
		dt.Year(), dt.month, dt.day, dt.hour, dt.minute, dt.second, dt.week)
}

func clamp(v, lo, hi int) byte {
	if v < lo {
		return byte(lo)
	}
	if v > hi {
		return byte(hi)
	}
	return byte(v)
}
