package jobs

import (
	"fmt"
	"strings"
	"time"
)

// WorkplaceType is the platform-asserted working arrangement of a posting.
type WorkplaceType string

const (
	WorkplaceRemote  WorkplaceType = "remote"
	WorkplaceHybrid  WorkplaceType = "hybrid"
	WorkplaceOnsite  WorkplaceType = "onsite"
	WorkplaceUnknown WorkplaceType = ""
)

// ParseWorkplaceType maps free-form platform values to a WorkplaceType.
// Anything unrecognised is WorkplaceUnknown.
func ParseWorkplaceType(s string) WorkplaceType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remote", "remote_work", "remotework":
		return WorkplaceRemote
	case "hybrid", "flexible":
		return WorkplaceHybrid
	case "onsite", "on-site", "on_site", "office", "fullday":
		return WorkplaceOnsite
	default:
		return WorkplaceUnknown
	}
}

// Key is the natural key of a posting.
type Key struct {
	Platform   string
	ExternalID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Platform, k.ExternalID)
}

// Candidate is a single discovered job posting normalized to a common schema.
// It is treated as an immutable value: scores live in ScoredCandidate.
type Candidate struct {
	ExternalID         string        `json:"externalId"`
	Platform           string        `json:"platform"`
	Title              string        `json:"title"`
	Company            string        `json:"company"`
	Location           string        `json:"location"`
	URL                string        `json:"url"`
	IsEasyApplyLike    bool          `json:"isEasyApplyLike"`
	WorkplaceType      WorkplaceType `json:"workplaceType"`
	PostedTime         string        `json:"postedTime"`
	DescriptionSnippet string        `json:"descriptionSnippet"`
	DiscoveredAt       time.Time     `json:"discoveredAt"`
}

func (c Candidate) Key() Key {
	return Key{Platform: c.Platform, ExternalID: c.ExternalID}
}

// Candidates is an ordered batch of candidates flowing through the filter chain.
type Candidates struct {
	Items []Candidate
}

func NewCandidates(items ...Candidate) *Candidates {
	return &Candidates{Items: items}
}

func (c *Candidates) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// Keep retains only the candidates for which keep returns true, preserving order.
// It returns the natural keys of the dropped candidates.
func (c *Candidates) Keep(keep func(Candidate) bool) []string {
	var dropped []string
	kept := make([]Candidate, 0, len(c.Items))
	for _, candidate := range c.Items {
		if keep(candidate) {
			kept = append(kept, candidate)
			continue
		}
		dropped = append(dropped, candidate.Key().String())
	}
	c.Items = kept
	return dropped
}
