package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ParseError reports a raw platform record that could not be normalized into a Candidate.
type ParseError struct {
	Platform string
	Index    int
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s record #%d: %s", e.Platform, e.Index, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Record is a raw, platform-native posting as produced by acquisition code.
type Record map[string]any

type rawCandidate struct {
	ExternalID         string `mapstructure:"externalId"`
	Title              string `mapstructure:"title"`
	Company            string `mapstructure:"company"`
	Location           string `mapstructure:"location"`
	URL                string `mapstructure:"url"`
	IsEasyApplyLike    bool   `mapstructure:"isEasyApplyLike"`
	WorkplaceType      string `mapstructure:"workplaceType"`
	PostedTime         string `mapstructure:"postedTime"`
	DescriptionSnippet string `mapstructure:"descriptionSnippet"`
}

// Decode normalizes a raw record into a Candidate for the given platform.
// Company, location and description may be absent; id, title and an absolute url may not.
func Decode(platform string, index int, record Record, discoveredAt time.Time) (Candidate, error) {
	var raw rawCandidate

	cfg := &mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook:       trimStringsHook,
	}

	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return Candidate{}, &ParseError{Platform: platform, Index: index, Reason: "building decoder", Err: err}
	}

	if err := decoder.Decode(map[string]any(record)); err != nil {
		return Candidate{}, &ParseError{Platform: platform, Index: index, Reason: "decoding record", Err: err}
	}

	switch {
	case raw.ExternalID == "":
		return Candidate{}, &ParseError{Platform: platform, Index: index, Reason: "missing externalId"}
	case raw.Title == "":
		return Candidate{}, &ParseError{Platform: platform, Index: index, Reason: "missing title"}
	}

	u, err := url.Parse(raw.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return Candidate{}, &ParseError{Platform: platform, Index: index, Reason: fmt.Sprintf("url %q is not absolute", raw.URL), Err: err}
	}

	return Candidate{
		ExternalID:         raw.ExternalID,
		Platform:           platform,
		Title:              raw.Title,
		Company:            raw.Company,
		Location:           raw.Location,
		URL:                raw.URL,
		IsEasyApplyLike:    raw.IsEasyApplyLike,
		WorkplaceType:      ParseWorkplaceType(raw.WorkplaceType),
		PostedTime:         raw.PostedTime,
		DescriptionSnippet: raw.DescriptionSnippet,
		DiscoveredAt:       discoveredAt,
	}, nil
}

// DecodeAll normalizes a batch, returning the decoded candidates in input order together with
// one ParseError per dropped record.
func DecodeAll(platform string, records []Record, discoveredAt time.Time) ([]Candidate, []error) {
	candidates := make([]Candidate, 0, len(records))
	var failures []error
	for idx, record := range records {
		c, err := Decode(platform, idx, record, discoveredAt)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, failures
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func trimStringsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	}
	return data, nil
}
