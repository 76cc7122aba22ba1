package imap

import "time"

// dateTimeLayout is RFC 3501's date-time format, e.g.
// "17-Jul-1996 02:44:25 -0700".
const dateTimeLayout = "02-Jan-2006 15:04:05 -0700"

// ParseIMAPDate parses an APPEND date-time argument.
func ParseIMAPDate(s string) (time.Time, error) {
	return time.Parse(dateTimeLayout, s)
}

// FormatIMAPDate renders t in RFC 3501's date-time format, used for the
// INTERNALDATE fetch attribute.
func FormatIMAPDate(t time.Time) string {
	return t.Format(dateTimeLayout)
}
