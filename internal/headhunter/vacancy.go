package headhunter

import (
	"html"
	"regexp"
	"strings"

	"github.com/spigell/jobsieve/internal/jobs"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

type Vacancies struct {
	Items []*Vacancy
}

type Area struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Schedule struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Employer struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	Trusted      bool   `json:"trusted,omitempty"`
}

type Snippet struct {
	Requirement    string `json:"requirement,omitempty"`
	Responsibility string `json:"responsibility,omitempty"`
}

type Vacancy struct {
	ID                     string   `json:"id,omitempty"`
	Name                   string   `json:"name,omitempty"`
	Area                   Area     `json:"area,omitempty"`
	HasTest                bool     `json:"has_test,omitempty"`
	ResponseLetterRequired bool     `json:"response_letter_required,omitempty"`
	Schedule               Schedule `json:"schedule,omitempty"`
	Employer               Employer `json:"employer,omitempty"`
	AlternateURL           string   `json:"alternate_url,omitempty"`
	Description            string   `json:"description,omitempty"`
	Archived               bool     `json:"archived,omitempty"`
	Snippet                Snippet  `json:"snippet,omitempty"`
	PublishedAt            string   `json:"published_at,omitempty"`
}

func (v *Vacancies) Len() int {
	return len(v.Items)
}

// Keep retains the vacancies matching keep, preserving order, and returns the number dropped.
func (v *Vacancies) Keep(keep func(*Vacancy) bool) int {
	kept := make([]*Vacancy, 0, len(v.Items))
	for _, vacancy := range v.Items {
		if keep(vacancy) {
			kept = append(kept, vacancy)
		}
	}
	dropped := len(v.Items) - len(kept)
	v.Items = kept
	return dropped
}

// EasyApply reports whether a response needs neither a test nor a cover letter.
func (va *Vacancy) EasyApply() bool {
	return !va.HasTest && !va.ResponseLetterRequired
}

// WorkplaceType maps the hh.ru schedule id to a workplace type.
func (va *Vacancy) WorkplaceType() jobs.WorkplaceType {
	switch va.Schedule.ID {
	case "remote":
		return jobs.WorkplaceRemote
	case "flexible":
		return jobs.WorkplaceHybrid
	case "fullDay", "shift", "flyInFlyOut":
		return jobs.WorkplaceOnsite
	default:
		return jobs.WorkplaceUnknown
	}
}

// Text returns the full description when fetched and the search snippet otherwise, without markup.
func (va *Vacancy) Text() string {
	if d := plainText(va.Description); d != "" {
		return d
	}
	parts := make([]string, 0, 2)
	for _, s := range []string{va.Snippet.Requirement, va.Snippet.Responsibility} {
		if s = plainText(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Record converts the vacancy into the common raw record shape.
func (va *Vacancy) Record() jobs.Record {
	return jobs.Record{
		"externalId":         va.ID,
		"title":              va.Name,
		"company":            va.Employer.Name,
		"location":           va.Area.Name,
		"url":                va.AlternateURL,
		"isEasyApplyLike":    va.EasyApply(),
		"workplaceType":      string(va.WorkplaceType()),
		"postedTime":         va.PublishedAt,
		"descriptionSnippet": va.Text(),
	}
}

func plainText(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}
