package search

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/psemmelhack/fm-agent/internal/clock"
	"github.com/psemmelhack/fm-agent/internal/domain"
)

// CatalogTimeLayouts are the accepted Start formats, tried in order. Layouts
// without a zone are read in the catalog's location.
var CatalogTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Catalog is a Searcher over a fixed list of events. Only events that start
// after the clock's current time are returned.
type Catalog struct {
	events []domain.Candidate
	index  *Index
	clock  clock.Clock
}

// NewCatalog indexes events by title, details and location.
func NewCatalog(events []domain.Candidate, clk clock.Clock) *Catalog {
	texts := make([]string, len(events))
	for i, e := range events {
		texts[i] = e.Title + " " + e.Details + " " + e.Location
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Catalog{events: events, index: NewIndex(texts, WithStopwords(DefaultStopwords)), clock: clk}
}

// LoadCatalog reads the Markdown catalog at path.
func LoadCatalog(path string, loc *time.Location, clk clock.Clock) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	events, err := ParseCatalog(f, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewCatalog(events, clk), nil
}

// Len returns the number of catalogued events.
func (c *Catalog) Len() int { return len(c.events) }

// Search implements Searcher. Results are ordered by score, then start time.
func (c *Catalog) Search(ctx context.Context, query string) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := c.clock.Now()
	ranked := c.index.Rank(query, func(i int) bool { return c.events[i].StartTime.After(now) })
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return c.events[ranked[a].Doc].StartTime.Before(c.events[ranked[b].Doc].StartTime)
	})
	out := make([]domain.Candidate, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, c.events[r.Doc])
	}
	return out, nil
}

// ParseCatalog reads events from Markdown table rows:
//
//	| Title | Start | Location | Details | URL |
//	|-------|-------|----------|---------|-----|
//	| Jazz on the Green | 2026-10-14 19:00 | Dering Harbor | Trio, bring a chair | https://... |
//
// The first table row is the header and decides column order; Title and
// Start are required, the others optional. Lines outside tables are
// ignored, as are separator rows.
func ParseCatalog(r io.Reader, loc *time.Location) ([]domain.Candidate, error) {
	if loc == nil {
		loc = time.UTC
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		cols   map[string]int
		out    []domain.Candidate
		lineNo int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
			if line == "" {
				cols = nil // a blank line ends the table
			}
			continue
		}
		cells := splitRow(line)
		if isSeparator(cells) {
			continue
		}
		if cols == nil {
			cols = headerColumns(cells)
			if _, ok := cols["title"]; !ok {
				return nil, fmt.Errorf("line %d: table header needs a Title column", lineNo)
			}
			if _, ok := cols["start"]; !ok {
				return nil, fmt.Errorf("line %d: table header needs a Start column", lineNo)
			}
			continue
		}

		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(cells) {
				return cells[i]
			}
			return ""
		}
		title := NormalizeTitle(get("title"))
		if title == "" {
			continue
		}
		start, err := parseStart(get("start"), loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, domain.Candidate{
			Title:     title,
			StartTime: start,
			Location:  get("location"),
			Details:   get("details"),
			URL:       get("url"),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func splitRow(line string) []string {
	raw := strings.Split(strings.Trim(line, "|"), "|")
	cells := make([]string, len(raw))
	for i, c := range raw {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, ":- ") != "" {
			return false
		}
	}
	return true
}

func headerColumns(cells []string) map[string]int {
	cols := make(map[string]int, len(cells))
	for i, c := range cells {
		switch strings.ToLower(c) {
		case "title", "event", "name":
			cols["title"] = i
		case "start", "when", "start time", "date":
			cols["start"] = i
		case "location", "where", "venue":
			cols["location"] = i
		case "details", "description", "notes":
			cols["details"] = i
		case "url", "link":
			cols["url"] = i
		}
	}
	return cols
}

func parseStart(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range CatalogTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized start time %q", s)
}
