package scoring

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const maxRecencyBonus = 10.0

// hhTimeLayout is the timestamp format of the hh.ru API.
const hhTimeLayout = "2006-01-02T15:04:05-0700"

var relativePatterns = []struct {
	re   *regexp.Regexp
	days float64
}{
	{regexp.MustCompile(`(?i)(\d+)\s*minute`), 0},
	{regexp.MustCompile(`(?i)(\d+)\s*hour`), 0},
	{regexp.MustCompile(`(?i)(\d+)\s*day`), 1},
	{regexp.MustCompile(`(?i)(\d+)\s*week`), 7},
	{regexp.MustCompile(`(?i)(\d+)\s*month`), 30},
}

// DaysAgo estimates the posting age in days from relative text ("3 days ago") or an absolute
// timestamp. The second result is false when posted cannot be read.
func DaysAgo(posted string, now time.Time) (float64, bool) {
	posted = strings.TrimSpace(posted)
	if posted == "" {
		return 0, false
	}

	for _, layout := range []string{time.RFC3339, hhTimeLayout} {
		if t, err := time.Parse(layout, posted); err == nil {
			return math.Max(0, now.Sub(t).Hours()/24), true
		}
	}

	lower := strings.ToLower(posted)
	switch {
	case strings.Contains(lower, "just now"), strings.Contains(lower, "today"):
		return 0, true
	case strings.Contains(lower, "yesterday"):
		return 1, true
	}

	for _, p := range relativePatterns {
		match := p.re.FindStringSubmatch(posted)
		if match == nil {
			continue
		}
		n, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		return n * p.days, true
	}
	return 0, false
}

// RecencyBonus is at most 10*weight for postings from today and decays linearly to zero at 30 days.
// Unreadable times contribute nothing.
func RecencyBonus(posted string, weight float64, now time.Time) float64 {
	days, ok := DaysAgo(posted, now)
	if !ok || weight <= 0 {
		return 0
	}
	if days <= 0 {
		return maxRecencyBonus * weight
	}
	return math.Max(0, maxRecencyBonus-days/3) * weight
}
