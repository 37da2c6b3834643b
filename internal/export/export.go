// Package export serializes scored and persisted candidates for downstream tools.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/jobsieve/internal/jobs"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json or csv)", s)
	}
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// Row is the flat export shape of a candidate. Persistence fields are empty for candidates that were
// never stored.
type Row struct {
	ExternalID         string     `json:"externalId"`
	Platform           string     `json:"platform"`
	Title              string     `json:"title"`
	Company            string     `json:"company"`
	Location           string     `json:"location"`
	URL                string     `json:"url"`
	IsEasyApplyLike    bool       `json:"isEasyApplyLike"`
	WorkplaceType      string     `json:"workplaceType"`
	PostedTime         string     `json:"postedTime"`
	DescriptionSnippet string     `json:"descriptionSnippet"`
	DiscoveredAt       time.Time  `json:"discoveredAt"`
	RuleScore          float64    `json:"ruleScore"`
	AssistedScore      *float64   `json:"assistedScore,omitempty"`
	Reasoning          string     `json:"reasoning,omitempty"`
	FinalScore         float64    `json:"finalScore"`
	Status             string     `json:"status,omitempty"`
	FirstSeenAt        *time.Time `json:"firstSeenAt,omitempty"`
	LastSeenAt         *time.Time `json:"lastSeenAt,omitempty"`
}

var header = []string{
	"externalId", "platform", "title", "company", "location", "url", "isEasyApplyLike", "workplaceType",
	"postedTime", "descriptionSnippet", "discoveredAt", "ruleScore", "assistedScore", "reasoning",
	"finalScore", "status", "firstSeenAt", "lastSeenAt",
}

func scoredRow(s jobs.ScoredCandidate) Row {
	c := s.Candidate
	return Row{
		ExternalID:         c.ExternalID,
		Platform:           c.Platform,
		Title:              c.Title,
		Company:            c.Company,
		Location:           c.Location,
		URL:                c.URL,
		IsEasyApplyLike:    c.IsEasyApplyLike,
		WorkplaceType:      string(c.WorkplaceType),
		PostedTime:         c.PostedTime,
		DescriptionSnippet: c.DescriptionSnippet,
		DiscoveredAt:       c.DiscoveredAt,
		RuleScore:          s.RuleScore,
		AssistedScore:      s.AssistedScore,
		Reasoning:          s.Reasoning,
		FinalScore:         s.FinalScore,
	}
}

func storedRow(s jobs.StoredCandidate) Row {
	row := scoredRow(s.ScoredCandidate)
	row.Status = string(s.Status)
	if !s.FirstSeenAt.IsZero() {
		first := s.FirstSeenAt
		row.FirstSeenAt = &first
	}
	if !s.LastSeenAt.IsZero() {
		last := s.LastSeenAt
		row.LastSeenAt = &last
	}
	return row
}

// StoredRows flattens persisted candidates.
func StoredRows(candidates []jobs.StoredCandidate) []Row {
	rows := make([]Row, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, storedRow(c))
	}
	return rows
}

// Results serializes persisted candidates in the given format.
func Results(candidates []jobs.StoredCandidate, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, StoredRows(candidates), format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Write(w io.Writer, rows []Row, format Format) error {
	switch format {
	case FormatJSON, "":
		if rows == nil {
			rows = []Row{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case FormatCSV:
		return writeCSV(w, rows)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r Row) record() []string {
	return []string{
		r.ExternalID,
		r.Platform,
		r.Title,
		r.Company,
		r.Location,
		r.URL,
		strconv.FormatBool(r.IsEasyApplyLike),
		r.WorkplaceType,
		r.PostedTime,
		r.DescriptionSnippet,
		formatTime(&r.DiscoveredAt),
		formatScore(&r.RuleScore),
		formatScore(r.AssistedScore),
		r.Reasoning,
		formatScore(&r.FinalScore),
		r.Status,
		formatTime(r.FirstSeenAt),
		formatTime(r.LastSeenAt),
	}
}

func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
