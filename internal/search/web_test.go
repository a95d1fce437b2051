package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/psemmelhack/fm-agent/internal/clock"
)

type fakeCompleter struct {
	out    string
	err    error
	system string
	user   string
	json   bool
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string, jsonMode bool) (string, error) {
	f.system, f.user, f.json = system, user, jsonMode
	return f.out, f.err
}

func tavilyServer(t *testing.T, status int, body string, seen *tavilyRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWeb_SearchExtractsFutureEvents(t *testing.T) {
	var seen tavilyRequest
	srv := tavilyServer(t, http.StatusOK, `{"results":[
		{"title":"Jazz at the Pridwin","url":"https://a.example","content":"Friday 8pm trio","score":0.9},
		{"title":"Museum hours","url":"https://b.example","content":"open daily","score":0.4}
	]}`, &seen)

	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	now := time.Date(2026, 10, 14, 6, 0, 0, 0, loc)
	fc := &fakeCompleter{out: `{"events":[
		{"title":"JAZZ AT THE PRIDWIN","start_time":"2026-10-16T20:00:00-04:00","location":"Pridwin","details":"Trio","url":"https://a.example"},
		{"title":"Yesterday's Talk","start_time":"2026-10-13T18:00:00-07:00"},
		{"title":"No Time","start_time":"soon"},
		{"title":"  ","start_time":"2026-10-20T18:00:00-07:00"},
		{"title":"Lecture","start_time":"2026-10-15 19:00","location":"Library"}
	]}`}

	w := NewWeb(WebConfig{APIKey: "tvly-key", BaseURL: srv.URL, Location: "Shelter Island, NY"}, fc, loc, clock.Fake(now))
	got, err := w.Search(context.Background(), "live jazz")
	require.NoError(t, err)

	require.Equal(t, "live jazz near Shelter Island, NY upcoming events", seen.Query)
	require.Equal(t, 5, seen.MaxResults)
	require.True(t, fc.json)
	require.Contains(t, fc.user, "Request: live jazz")
	require.Contains(t, fc.user, "Jazz at the Pridwin")

	require.Len(t, got, 2)
	require.Equal(t, "Jazz At The Pridwin", got[0].Title)
	require.Equal(t, "Pridwin", got[0].Location)
	require.Equal(t, "Lecture", got[1].Title)
	require.True(t, got[1].StartTime.Equal(time.Date(2026, 10, 15, 19, 0, 0, 0, loc)))
}

func TestWeb_NoHitsSkipsExtraction(t *testing.T) {
	srv := tavilyServer(t, http.StatusOK, `{"results":[]}`, nil)
	fc := &fakeCompleter{err: errors.New("must not be called")}

	w := NewWeb(WebConfig{APIKey: "tvly-key", BaseURL: srv.URL}, fc, nil, nil)
	got, err := w.Search(context.Background(), "opera")
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, fc.user)
}

func TestWeb_HTTPStatusError(t *testing.T) {
	srv := tavilyServer(t, http.StatusBadGateway, `upstream down`, nil)
	w := NewWeb(WebConfig{APIKey: "tvly-key", BaseURL: srv.URL}, &fakeCompleter{}, nil, nil)

	_, err := w.Search(context.Background(), "jazz")
	var se *HTTPStatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadGateway, se.StatusCode)
	require.Equal(t, "upstream down", se.Body)
}

func TestWeb_ExtractorFailures(t *testing.T) {
	srv := tavilyServer(t, http.StatusOK, `{"results":[{"title":"x","url":"u","content":"c"}]}`, nil)

	w := NewWeb(WebConfig{APIKey: "tvly-key", BaseURL: srv.URL}, &fakeCompleter{err: errors.New("boom")}, nil, nil)
	_, err := w.Search(context.Background(), "jazz")
	require.ErrorContains(t, err, "extract events")

	w = NewWeb(WebConfig{APIKey: "tvly-key", BaseURL: srv.URL}, &fakeCompleter{out: "not json"}, nil, nil)
	_, err = w.Search(context.Background(), "jazz")
	require.ErrorContains(t, err, "decode")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab…", truncate("abcdef", 2))
}
