package command

import (
	"regexp"
	"strconv"
)

var priorityRegex = regexp.MustCompile(`\[PRIORITY:(\d+)\]`)

// ExtractPriority reads the first [PRIORITY:<digits>] marker in subject.
// A missing marker, or digits that do not fit an int64, yield LowestPriority.
func ExtractPriority(subject string) Priority {
	m := priorityRegex.FindStringSubmatch(subject)
	if m == nil {
		return LowestPriority
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return LowestPriority
	}
	return Priority(n)
}

// IsLowest reports whether p is the fallback priority.
func (p Priority) IsLowest() bool { return p == LowestPriority }

func (p Priority) String() string {
	if p.IsLowest() {
		return "inf"
	}
	return strconv.FormatInt(int64(p), 10)
}
