// Package replay serves raw records captured in a JSON file, for offline runs.
package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/platform"
)

const Name = "replay"

// Adapter answers every search from a file. The file holds either a list of records returned for any
// keyword, or an object mapping keywords to record lists.
type Adapter struct {
	name string
	path string
}

// New returns an adapter registered under name (Name when empty) reading path on every search.
func New(name, path string) *Adapter {
	if name == "" {
		name = Name
	}
	return &Adapter{name: name, path: path}
}

func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) Search(ctx context.Context, search platform.Search) ([]jobs.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, platform.AdapterError(a.name, err)
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, platform.AdapterError(a.name, fmt.Errorf("reading replay file: %w", err))
	}

	records, err := parse(data, search.Keyword)
	if err != nil {
		return nil, platform.AdapterError(a.name, fmt.Errorf("parsing replay file %s: %w", a.path, err))
	}
	return records, nil
}

// decode keeps numbers as json.Number so large numeric ids survive intact.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func parse(data []byte, keyword string) ([]jobs.Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var records []jobs.Record
		if err := decode(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var byKeyword map[string][]jobs.Record
	if err := decode(data, &byKeyword); err != nil {
		return nil, err
	}
	for k, records := range byKeyword {
		if strings.EqualFold(strings.TrimSpace(k), strings.TrimSpace(keyword)) {
			return records, nil
		}
	}
	return nil, nil
}
