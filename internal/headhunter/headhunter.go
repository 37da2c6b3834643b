// Package headhunter is a read-only client for the hh.ru vacancy search API.
package headhunter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/platform"
)

const (
	// Name is the platform identifier of hh.ru candidates.
	Name = "hh"

	apiURL    = "https://api.hh.ru"
	userAgent = "spigell/jobsieve (spigelly@gmail.com)"
	// Max value for search per page.
	perPage = "100"

	defaultPageDelay = 500 * time.Millisecond
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
	// PageDelay paces consecutive page requests of one search.
	PageDelay time.Duration
}

// New creates a client. The token is optional: vacancy search is a public endpoint.
func New(logger *zap.Logger, token string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:  token,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
		PageDelay: defaultPageDelay,
	}
}

func (c *Client) Name() string {
	return Name
}

// Search runs the search against hh.ru and returns one raw record per vacancy.
func (c *Client) Search(ctx context.Context, search platform.Search) ([]jobs.Record, error) {
	params := ParamsFromSearch(search)

	vacancies, err := c.search(ctx, params, search.Filters.MaxPages)
	if err != nil {
		return nil, platform.AdapterError(Name, err)
	}

	if search.Filters.EasyApplyOnly {
		dropped := vacancies.Keep(func(v *Vacancy) bool { return v.EasyApply() })
		c.logger.Debug("dropped vacancies requiring a test or a cover letter", zap.Int("count", dropped))
	}

	if search.FetchDescription {
		c.fillDescriptions(ctx, vacancies)
	}

	records := make([]jobs.Record, 0, vacancies.Len())
	for _, v := range vacancies.Items {
		records = append(records, v.Record())
	}

	return records, nil
}

// fillDescriptions fetches full descriptions one by one. A failed fetch keeps the search snippet.
func (c *Client) fillDescriptions(ctx context.Context, vacancies *Vacancies) {
	for _, v := range vacancies.Items {
		var full Vacancy
		url := fmt.Sprintf("%s%s/%s", c.APIURL, SearchPath, v.ID)
		if err := c.getJSON(ctx, url, nil, &full); err != nil {
			c.logger.Warn("failed to fetch vacancy description, keeping snippet",
				zap.String("vacancy_id", v.ID),
				zap.Error(err),
			)
			continue
		}
		v.Description = full.Description
	}
}
