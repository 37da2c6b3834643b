package headhunter

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/platform"
)

var fixedTime = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func vacancyItem(id, name, schedule string, hasTest bool) map[string]any {
	return map[string]any{
		"id":            id,
		"name":          name,
		"alternate_url": "https://hh.ru/vacancy/" + id,
		"area":          map[string]any{"id": "1", "name": "Moscow"},
		"employer":      map[string]any{"id": "e" + id, "name": "Acme"},
		"schedule":      map[string]any{"id": schedule},
		"has_test":      hasTest,
		"published_at":  "2026-05-09T15:00:00+0300",
		"snippet": map[string]any{
			"requirement":    "Strong <highlighttext>Go</highlighttext> skills",
			"responsibility": nil,
		},
	}
}

type pagedServer struct {
	mu      sync.Mutex
	queries []map[string][]string
	pages   [][]map[string]any
	gzip    bool
}

func (s *pagedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.queries = append(s.queries, r.URL.Query())
	s.mu.Unlock()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	body := map[string]any{
		"items":    s.pages[page],
		"found":    10,
		"pages":    len(s.pages),
		"page":     page,
		"per_page": 100,
	}

	w.Header().Set("Content-Type", "application/json")
	if s.gzip {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_ = json.NewEncoder(gz).Encode(body)
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c := New(zaptest.NewLogger(t), "")
	c.APIURL = url
	c.PageDelay = 0
	return c
}

func TestSearchFetchesAllPages(t *testing.T) {
	srv := &pagedServer{
		gzip: true,
		pages: [][]map[string]any{
			{vacancyItem("1", "Go Developer", "remote", false), vacancyItem("2", "Go Lead", "fullDay", true)},
			{vacancyItem("3", "Platform Engineer", "flexible", false)},
		},
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	records, err := newTestClient(t, ts.URL).Search(context.Background(), platform.Search{
		Keyword: "golang",
		Filters: platform.Filters{WorkplaceTypes: []string{"remote", "hybrid"}, Areas: []int{1, 2}},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	first := srv.queries[0]
	if first["text"][0] != "golang" || first["per_page"][0] != "100" {
		t.Fatalf("unexpected query %v", first)
	}
	if fmt.Sprint(first["schedule"]) != "[remote flexible]" || fmt.Sprint(first["area"]) != "[1 2]" {
		t.Fatalf("filters not translated: %v", first)
	}
	if srv.queries[1]["page"][0] != "1" {
		t.Fatalf("second request should ask for page 1: %v", srv.queries[1])
	}

	candidates, failures := jobs.DecodeAll(Name, records, fixedTime)
	if len(failures) != 0 {
		t.Fatalf("unexpected parse failures: %v", failures)
	}
	got := candidates[0]
	if got.ExternalID != "1" || got.Company != "Acme" || got.Location != "Moscow" {
		t.Fatalf("unexpected candidate %+v", got)
	}
	if got.WorkplaceType != jobs.WorkplaceRemote || !got.IsEasyApplyLike {
		t.Fatalf("unexpected workplace or easy apply flag: %+v", got)
	}
	if got.DescriptionSnippet != "Strong Go skills" {
		t.Fatalf("snippet should be stripped of markup, got %q", got.DescriptionSnippet)
	}
	if candidates[1].IsEasyApplyLike || candidates[2].WorkplaceType != jobs.WorkplaceHybrid {
		t.Fatalf("unexpected mapping: %+v %+v", candidates[1], candidates[2])
	}
}

func TestSearchHonoursMaxPagesAndEasyApply(t *testing.T) {
	srv := &pagedServer{
		pages: [][]map[string]any{
			{vacancyItem("1", "Go Developer", "remote", true), vacancyItem("2", "Go Developer", "remote", false)},
			{vacancyItem("3", "Go Developer", "remote", false)},
		},
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	records, err := newTestClient(t, ts.URL).Search(context.Background(), platform.Search{
		Keyword: "go",
		Filters: platform.Filters{MaxPages: 1, EasyApplyOnly: true},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(srv.queries) != 1 {
		t.Fatalf("expected a single page request, got %d", len(srv.queries))
	}
	if len(records) != 1 || records[0]["externalId"] != "2" {
		t.Fatalf("unexpected records %v", records)
	}
}

func TestSearchFailureIsAdapterError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).Search(context.Background(), platform.Search{Keyword: "go"})
	if !errors.Is(err, platform.ErrAdapter) {
		t.Fatalf("expected adapter error, got %v", err)
	}
}

func TestSearchFetchesDescriptions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/vacancies", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{vacancyItem("7", "Go Developer", "remote", false), vacancyItem("8", "Go Developer", "remote", false)},
			"pages": 1,
		})
	})
	mux.HandleFunc("/vacancies/7", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "7", "description": "<p>Build &amp; run services</p>"})
	})
	mux.HandleFunc("/vacancies/8", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	records, err := newTestClient(t, ts.URL).Search(context.Background(), platform.Search{Keyword: "go", FetchDescription: true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if records[0]["descriptionSnippet"] != "Build & run services" {
		t.Fatalf("unexpected description %q", records[0]["descriptionSnippet"])
	}
	if records[1]["descriptionSnippet"] != "Strong Go skills" {
		t.Fatalf("failed fetch should keep the snippet, got %q", records[1]["descriptionSnippet"])
	}
}

func TestSetHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	New(nil, "").setHeaders(req)
	if req.Header.Get("Authorization") != "" {
		t.Fatalf("anonymous client must not send a token")
	}

	New(nil, "secret").setHeaders(req)
	if req.Header.Get("Authorization") != "Bearer secret" {
		t.Fatalf("unexpected authorization header %q", req.Header.Get("Authorization"))
	}
}
