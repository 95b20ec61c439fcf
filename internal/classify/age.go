package classify

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

var viMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "vừa xong", DivBy: time.Second},
	{D: time.Minute, Format: "%d giây %s", DivBy: time.Second},
	{D: time.Hour, Format: "%d phút %s", DivBy: time.Minute},
	{D: humanize.Day, Format: "%d giờ %s", DivBy: time.Hour},
	{D: humanize.Week, Format: "%d ngày %s", DivBy: humanize.Day},
	{D: humanize.Month, Format: "%d tuần %s", DivBy: humanize.Week},
	{D: humanize.Year, Format: "%d tháng %s", DivBy: humanize.Month},
	{D: humanize.LongTime, Format: "%d năm %s", DivBy: humanize.Year},
	{D: math.MaxInt64, Format: "rất lâu %s", DivBy: 1},
}

// age renders created relative to the classifier clock. Zero times have no age.
func (c *Classifier) age(created time.Time) string {
	if created.IsZero() {
		return ""
	}
	now := c.now()
	if c.locale == "en" {
		return humanize.RelTime(created, now, "ago", "from now")
	}
	return humanize.CustomRelTime(created, now, "trước", "nữa", viMagnitudes)
}
