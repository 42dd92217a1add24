package adamas

import (
	"fmt"
	"regexp"
	"strconv"
)

var dmyRegex = regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{4})`)

// NormalizeDate canonicalizes a D-M-YYYY date into DD-MM-YYYY, left
// padding day and month to two digits. The year passes through
// unchanged. Idempotent. When no day-month-year pattern is present the
// input comes back untouched, callers treat that as "normalization
// failed" and decide for themselves.
func NormalizeDate(s string) string {
	m := dmyRegex.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	return fmt.Sprintf("%02d-%02d-%s", day, month, m[3])
}
