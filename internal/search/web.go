package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/psemmelhack/fm-agent/internal/clock"
	"github.com/psemmelhack/fm-agent/internal/domain"
	"github.com/psemmelhack/fm-agent/internal/llm"
)

// WebConfig configures the Tavily-backed Searcher.
type WebConfig struct {
	APIKey     string
	BaseURL    string // default https://api.tavily.com
	MaxResults int    // default 5
	// Location is appended to every query ("near Shelter Island, NY").
	Location string
	Timeout  time.Duration
}

// Web searches the web with Tavily and extracts structured events from
// the hits with a language model.
type Web struct {
	cfg       WebConfig
	http      *http.Client
	extractor llm.Completer
	clock     clock.Clock
	loc       *time.Location
}

// NewWeb returns a Web searcher. Start times the model returns without an
// offset are read in loc.
func NewWeb(cfg WebConfig, extractor llm.Completer, loc *time.Location, clk clock.Clock) *Web {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Web{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, extractor: extractor, clock: clk, loc: loc}
}

// HTTPStatusError is a non-2xx answer from the search API.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("tavily: http %d: %s", e.StatusCode, e.Body)
}

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

// Search implements Searcher.
func (w *Web) Search(ctx context.Context, query string) ([]domain.Candidate, error) {
	hits, err := w.fetch(ctx, w.fullQuery(query))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return w.extract(ctx, query, hits)
}

func (w *Web) fullQuery(q string) string {
	q = strings.TrimSpace(q)
	if w.cfg.Location != "" {
		q += " near " + w.cfg.Location
	}
	return q + " upcoming events"
}

func (w *Web) fetch(ctx context.Context, q string) ([]tavilyResult, error) {
	body, err := json.Marshal(tavilyRequest{Query: q, SearchDepth: "advanced", MaxResults: w.cfg.MaxResults})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("tavily: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 200)}
	}
	var tr tavilyResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("tavily: decode: %w", err)
	}
	if len(tr.Results) > w.cfg.MaxResults {
		tr.Results = tr.Results[:w.cfg.MaxResults]
	}
	return tr.Results, nil
}

type extractedEvent struct {
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
	Location  string `json:"location"`
	Details   string `json:"details"`
	URL       string `json:"url"`
}

const extractSystem = `You turn web search results into a list of concrete upcoming events.
Answer with a JSON object {"events": [...]} where each event has:
"title", "start_time" (RFC 3339 with UTC offset), "location", "details" (one short sentence), "url".
Only include events with a specific start date and time that is after the current time given.
Keep the order of relevance to the request. Use an empty list when nothing qualifies.`

func (w *Web) extract(ctx context.Context, query string, hits []tavilyResult) ([]domain.Candidate, error) {
	now := w.clock.Now().In(w.loc)

	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", query)
	fmt.Fprintf(&b, "Current time: %s (%s)\n\n", now.Format(time.RFC3339), w.loc.String())
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, h.Title, truncate(h.Content, 600), h.URL)
	}

	out, err := w.extractor.Complete(ctx, extractSystem, b.String(), true)
	if err != nil {
		return nil, fmt.Errorf("extract events: %w", err)
	}

	var parsed struct {
		Events []extractedEvent `json:"events"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("extract events: decode: %w", err)
	}

	cands := make([]domain.Candidate, 0, len(parsed.Events))
	for _, e := range parsed.Events {
		title := NormalizeTitle(e.Title)
		if title == "" {
			continue
		}
		start, err := parseStart(strings.TrimSpace(e.StartTime), w.loc)
		if err != nil || !start.After(now) {
			continue
		}
		cands = append(cands, domain.Candidate{
			Title:     title,
			StartTime: start,
			Location:  strings.TrimSpace(e.Location),
			Details:   strings.TrimSpace(e.Details),
			URL:       strings.TrimSpace(e.URL),
		})
		if len(cands) == w.cfg.MaxResults {
			break
		}
	}
	return cands, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
