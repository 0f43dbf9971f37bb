package clock

import "time"

// Time and the layout/constant re-exports below let the rest of this
// package read as if it were written inside the standard time package,
// matching how the teacher's clock package is laid out.
type Time = time.Time

type ParseError = time.ParseError

const (
	RFC1123     = time.RFC1123
	RFC1123Z    = time.RFC1123Z
	RFC3339     = time.RFC3339
	RFC3339Nano = time.RFC3339Nano
	Second      = time.Second
)

// Unix and Parse are re-exported so callers never need to import "time"
// directly alongside this package.
func Unix(sec, nsec int64) Time                { return time.Unix(sec, nsec) }
func Parse(layout, value string) (Time, error) { return time.Parse(layout, value) }
