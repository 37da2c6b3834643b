package scoring

import (
	"strings"
	"unicode"
)

// Seniority is a coarse career level.
type Seniority string

const (
	SeniorityUnknown   Seniority = ""
	SeniorityJunior    Seniority = "junior"
	SeniorityMid       Seniority = "mid"
	SenioritySenior    Seniority = "senior"
	SeniorityStaff     Seniority = "staff"
	SeniorityPrincipal Seniority = "principal"
	SeniorityDirector  Seniority = "director"
)

var knownSeniorities = map[Seniority]struct{}{
	SeniorityJunior: {}, SeniorityMid: {}, SenioritySenior: {},
	SeniorityStaff: {}, SeniorityPrincipal: {}, SeniorityDirector: {},
}

// ParseSeniority accepts the configured level names. Unknown values yield false.
func ParseSeniority(s string) (Seniority, bool) {
	level := Seniority(strings.ToLower(strings.TrimSpace(s)))
	if level == SeniorityUnknown {
		return SeniorityUnknown, true
	}
	_, ok := knownSeniorities[level]
	return level, ok
}

// titleMarkers maps title words to levels. Checked from the highest level down.
var titleMarkers = []struct {
	level Seniority
	words []string
}{
	{SeniorityDirector, []string{"director", "head", "vp", "cto"}},
	{SeniorityPrincipal, []string{"principal", "architect"}},
	{SeniorityStaff, []string{"staff"}},
	{SenioritySenior, []string{"senior", "sr", "lead", "ведущий", "старший"}},
	{SeniorityMid, []string{"middle", "mid", "intermediate"}},
	{SeniorityJunior, []string{"junior", "jr", "intern", "trainee", "младший", "стажер"}},
}

// InferSeniority guesses the level from the posting title.
func InferSeniority(title string) Seniority {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}

	for _, marker := range titleMarkers {
		for _, w := range marker.words {
			if _, ok := set[w]; ok {
				return marker.level
			}
		}
	}
	return SeniorityUnknown
}

// IsSeniorOrAbove reports whether level is senior, staff, principal or director.
func (s Seniority) IsSeniorOrAbove() bool {
	switch s {
	case SenioritySenior, SeniorityStaff, SeniorityPrincipal, SeniorityDirector:
		return true
	default:
		return false
	}
}
