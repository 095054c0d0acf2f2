package cmr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
	"github.com/couchcryptid/weather-history-analyzer/internal/observability"
)

const (
	searchPath      = "/search/granules.umm_json"
	searchAfterKey  = "CMR-Search-After"
	globalBBox      = "-180,-90,180,90"
	defaultPageSize = 2000
	maxPages        = 50
)

var errCircuitOpen = errors.New("circuit breaker open")

// Options configures a catalog Client.
type Options struct {
	BaseURL       string
	Token         string
	ShortName     string
	Version       string
	Timeout       time.Duration
	PageSize      int
	MaxAttempts   int
	RetryInterval time.Duration
}

// Client searches the NASA Common Metadata Repository for granules of a
// single collection.
type Client struct {
	opts       Options
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a CMR search client.
func NewClient(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "cmr",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		}),
		logger:  logger.With("component", "cmr"),
		metrics: metrics,
	}
}

// SearchGranules returns every granule of the collection whose temporal
// extent intersects the window, following CMR-Search-After paging.
func (c *Client) SearchGranules(ctx context.Context, window domain.SearchWindow) ([]domain.Granule, error) {
	start := time.Now()
	params := c.searchParams(window)

	var granules []domain.Granule
	searchAfter := ""
	for page := 0; page < maxPages; page++ {
		batch, next, err := c.fetchPage(ctx, params, searchAfter)
		if err != nil {
			c.metrics.CatalogRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("search granules %s: %w", params.Get("temporal"), err)
		}
		granules = append(granules, batch...)
		if next == "" || len(batch) < c.opts.PageSize {
			break
		}
		searchAfter = next
	}

	c.metrics.CatalogRequests.WithLabelValues("success").Inc()
	c.metrics.CatalogDuration.Observe(time.Since(start).Seconds())
	c.metrics.GranulesFound.Add(float64(len(granules)))
	c.logger.Info("granule search complete",
		"year", window.Year,
		"temporal", params.Get("temporal"),
		"granules", len(granules),
	)
	return granules, nil
}

func (c *Client) searchParams(window domain.SearchWindow) url.Values {
	temporal := fmt.Sprintf("%sT00:00:00Z,%sT23:59:59Z",
		window.Start.Format(domain.DateLayout),
		window.End.Format(domain.DateLayout),
	)
	return url.Values{
		"short_name":   {c.opts.ShortName},
		"version":      {c.opts.Version},
		"temporal":     {temporal},
		"bounding_box": {globalBBox},
		"page_size":    {strconv.Itoa(c.opts.PageSize)},
	}
}

// fetchPage retrieves one result page with retries. It returns the decoded
// granules and the search-after token for the next page.
func (c *Client) fetchPage(ctx context.Context, params url.Values, searchAfter string) ([]domain.Granule, string, error) {
	fullURL := c.opts.BaseURL + searchPath + "?" + params.Encode()

	var (
		body []byte
		next string
	)
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/vnd.nasa.cmr.umm_results+json")
		if c.opts.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.opts.Token)
		}
		if searchAfter != "" {
			req.Header.Set(searchAfterKey, searchAfter)
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.do(req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: %v", errCircuitOpen, err))
			}
			var perm *permanentError
			if errors.As(err, &perm) {
				return backoff.Permanent(perm.err)
			}
			return err
		}
		page := result.(pageResult)
		body, next = page.body, page.searchAfter
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.RetryInterval
	exp.MaxInterval = 5 * time.Second
	bo := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.opts.MaxAttempts-1)), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("granule search attempt failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(operation, bo, notify); err != nil {
		return nil, "", err
	}

	granules, err := decodeGranules(body, c.logger)
	if err != nil {
		return nil, "", err
	}
	return granules, next, nil
}

type pageResult struct {
	body        []byte
	searchAfter string
}

// permanentError marks responses that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (c *Client) do(req *http.Request) (pageResult, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pageResult{}, fmt.Errorf("cmr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("cmr API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return pageResult{}, &permanentError{err: apiErr}
		}
		return pageResult{}, apiErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pageResult{}, fmt.Errorf("read response: %w", err)
	}
	return pageResult{body: body, searchAfter: resp.Header.Get(searchAfterKey)}, nil
}

// decodeGranules parses a umm_json result page. Items whose metadata does
// not decode are kept as granules with no related URLs.
func decodeGranules(body []byte, logger *slog.Logger) ([]domain.Granule, error) {
	var page response
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	granules := make([]domain.Granule, 0, len(page.Items))
	for _, raw := range page.Items {
		var it item
		if err := json.Unmarshal(raw, &it); err != nil {
			logger.Debug("skipping malformed granule metadata", "error", err)
			granules = append(granules, domain.Granule{})
			continue
		}
		g := domain.Granule{
			ConceptID: it.Meta.ConceptID,
			GranuleUR: it.UMM.GranuleUR,
		}
		for _, ru := range it.UMM.RelatedURLs {
			g.RelatedURLs = append(g.RelatedURLs, domain.RelatedURL(ru))
		}
		granules = append(granules, g)
	}
	return granules, nil
}

// CMR umm_json response types.

type response struct {
	Hits  int               `json:"hits"`
	Items []json.RawMessage `json:"items"`
}

type item struct {
	Meta struct {
		ConceptID string `json:"concept-id"`
	} `json:"meta"`
	UMM struct {
		GranuleUR   string       `json:"GranuleUR"`
		RelatedURLs []relatedURL `json:"RelatedUrls"`
	} `json:"umm"`
}

type relatedURL struct {
	URL         string `json:"URL"`
	Type        string `json:"Type"`
	Subtype     string `json:"Subtype"`
	Description string `json:"Description"`
}
