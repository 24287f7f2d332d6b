package domain

import (
	"fmt"
	"time"
)

// IsoDate is a calendar date encoded as the integer YYYYMMDD.
type IsoDate int32

// JDay is a Julian day number.
type JDay int32

// jdEpoch is subtracted from the Julian day when packing it into a market id.
const jdEpoch JDay = 2440000

// Valid reports whether d is a real calendar date.
func (d IsoDate) Valid() bool {
	y, m, day := d.split()
	if y < 1900 || y > 9999 || m < 1 || m > 12 || day < 1 {
		return false
	}
	t := time.Date(y, time.Month(m), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == m && t.Day() == day
}

func (d IsoDate) split() (year, month, day int) {
	v := int(d)
	return v / 10000, (v / 100) % 100, v % 100
}

// JDay converts the date to a Julian day number using integer arithmetic.
func (d IsoDate) JDay() JDay {
	y, m, day := d.split()
	a := (m - 14) / 12
	jd := (1461*(y+4800+a))/4 +
		(367*(m-2-12*a))/12 -
		(3*((y+4900+a)/100))/4 +
		day - 32075
	return JDay(jd)
}

// String formats the date as YYYYMMDD.
func (d IsoDate) String() string {
	return fmt.Sprintf("%08d", int32(d))
}

// IsoDateOf returns the UTC calendar date of t.
func IsoDateOf(t time.Time) IsoDate {
	t = t.UTC()
	return IsoDate(t.Year()*10000 + int(t.Month())*100 + t.Day())
}

// BusinessDay returns the business day for the given instant. The venue
// rolls at midnight UTC.
func BusinessDay(now time.Time) JDay {
	return IsoDateOf(now).JDay()
}
