package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu      sync.Mutex
	updates string
	offsets []string
	sent    []map[string]string
	status  int
	failure string
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.failure))
			return
		}
		switch r.URL.Path {
		case "/bottok/getUpdates":
			f.offsets = append(f.offsets, r.URL.Query().Get("offset"))
			_, _ = w.Write([]byte(`{"ok":true,"result":` + f.updates + `}`))
		case "/bottok/sendMessage":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.sent = append(f.sent, body)
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		}
	}
}

func newClient(t *testing.T, f *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Token: "tok", ChatID: "42"})
}

func TestPoll_FiltersChatAndNonText(t *testing.T) {
	f := &fakeAPI{updates: `[
		{"update_id":10,"message":{"date":1760425200,"text":"hi","chat":{"id":99}}},
		{"update_id":11,"message":{"date":1760425201,"text":"jazz tonight","from":{"first_name":"Peter"},"chat":{"id":42}}},
		{"update_id":12,"message":{"date":1760425202,"chat":{"id":42}}},
		{"update_id":13,"message":{"date":1760425203,"text":"2","from":{"username":"pete"},"chat":{"id":42}}}
	]`}
	c := newClient(t, f)

	msgs, err := c.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, int64(11), msgs[0].Marker)
	require.Equal(t, "jazz tonight", msgs[0].Text)
	require.Equal(t, "Peter", msgs[0].Sender)
	require.Equal(t, int64(1760425201), msgs[0].ReceivedAt.Unix())
	require.Equal(t, int64(13), msgs[1].Marker)
	require.Equal(t, "pete", msgs[1].Sender)

	// The foreign update led the batch, so the offset moved past it.
	require.Equal(t, int64(11), c.Offset())
}

func TestClear_AdvancesOffset(t *testing.T) {
	f := &fakeAPI{updates: `[]`}
	c := newClient(t, f)

	require.NoError(t, c.Clear(context.Background(), 20))
	require.Equal(t, int64(21), c.Offset())

	// Clearing an older marker never moves the offset backwards.
	require.NoError(t, c.Clear(context.Background(), 5))
	require.Equal(t, int64(21), c.Offset())

	_, err := c.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"21", "21", "21"}, f.offsets)
}

func TestSend_PlainTextToChat(t *testing.T) {
	f := &fakeAPI{}
	c := newClient(t, f)

	require.NoError(t, c.Send(context.Background(), "Good morning, Peter."))
	require.Len(t, f.sent, 1)
	require.Equal(t, "42", f.sent[0]["chat_id"])
	require.Equal(t, "Good morning, Peter.", f.sent[0]["text"])
	_, hasMode := f.sent[0]["parse_mode"]
	require.False(t, hasMode)
}

func TestSend_SplitsLongText(t *testing.T) {
	f := &fakeAPI{}
	c := newClient(t, f)

	long := strings.Repeat("a", MaxMessageLen) + "tail"
	require.NoError(t, c.Send(context.Background(), long))
	require.Len(t, f.sent, 2)
	require.Equal(t, "tail", f.sent[1]["text"])
}

func TestSend_APIError(t *testing.T) {
	f := &fakeAPI{status: http.StatusTooManyRequests, failure: `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`}
	c := newClient(t, f)

	err := c.Send(context.Background(), "hello")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.True(t, apiErr.Temporary())
	require.Equal(t, "3s", apiErr.RetryAfter.String())
	require.NotContains(t, err.Error(), "tok")
}

func TestPoll_BadGatewayWithoutJSON(t *testing.T) {
	f := &fakeAPI{status: http.StatusBadGateway, failure: "<html>bad gateway</html>"}
	c := newClient(t, f)

	_, err := c.Poll(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.True(t, apiErr.Temporary())
}

func TestSplit(t *testing.T) {
	require.Equal(t, []string{"short"}, Split("short", 10))
	parts := Split("line one\nline two\nline three", 12)
	require.Equal(t, []string{"line one\n", "line two\n", "line three"}, parts)
	require.Equal(t, []string{"abcd", "ef"}, Split("abcdef", 4))
}
