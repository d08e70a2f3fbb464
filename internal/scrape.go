package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxScrapeChars bounds how much page content is folded into a profile
const maxScrapeChars = 4000

// Scraper fetches a web page as markdown through a Firecrawl-compatible API
type Scraper struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	retry      RetryPolicy
}

// NewScraper creates a scraper for the given endpoint
func NewScraper(endpoint, apiKey string) *Scraper {
	return &Scraper{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry:      DefaultRetryPolicy,
	}
}

// SetRetryPolicy overrides how failed requests are retried
func (s *Scraper) SetRetryPolicy(policy RetryPolicy) {
	s.retry = policy
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"metadata"`
	} `json:"data"`
}

// ScrapedPage is the useful part of a scraped page
type ScrapedPage struct {
	URL         string
	Title       string
	Description string
	Markdown    string
}

// Scrape fetches pageURL and returns its main content as markdown
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (*ScrapedPage, error) {
	if s.endpoint == "" {
		return nil, Wrap(ErrValidation, "scrape", fmt.Errorf("scrape_api_url is not configured"))
	}
	if s.apiKey == "" {
		return nil, Wrap(ErrValidation, "scrape", fmt.Errorf("scrape API key not set (set FIRECRAWL_API_KEY)"))
	}
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, Wrap(ErrValidation, "scrape", fmt.Errorf("invalid URL %q", pageURL))
	}

	body, err := json.Marshal(scrapeRequest{URL: pageURL, Formats: []string{"markdown"}, OnlyMainContent: true})
	if err != nil {
		return nil, fmt.Errorf("encoding scrape request: %w", err)
	}

	var data []byte
	err = Retry(ctx, s.retry, func(ctx context.Context) error {
		var postErr error
		data, postErr = s.post(ctx, pageURL, body)
		return postErr
	})
	if err != nil {
		return nil, err
	}

	var out scrapeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding scrape response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("scrape failed: %s", out.Error)
	}

	return &ScrapedPage{
		URL:         pageURL,
		Title:       out.Data.Metadata.Title,
		Description: out.Data.Metadata.Description,
		Markdown:    strings.TrimSpace(out.Data.Markdown),
	}, nil
}

// post sends one scrape request and returns the response body of a
// successful call
func (s *Scraper) post(ctx context.Context, pageURL string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, Wrap(ErrNetwork, "scrape "+pageURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, Wrap(ErrNetwork, "reading scrape response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, Wrap(ErrRateLimit, "scrape", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, Wrap(ErrNetwork, "scrape", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, Wrap(ErrValidation, "scrape", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}
	return data, nil
}

// ProfileContext condenses a scraped page into text for the profile context field
func (p *ScrapedPage) ProfileContext() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Source: %s\n", p.URL)
	if p.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", p.Title)
	}
	if p.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", p.Description)
	}
	content, _ := TruncateTranscript(p.Markdown, maxScrapeChars)
	if content != "" {
		sb.WriteString("\n")
		sb.WriteString(content)
	}
	return strings.TrimSpace(sb.String())
}
