// Package telegram implements channel.Inbound and channel.Outbound over the
// Telegram Bot API (getUpdates polling and sendMessage).
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// ChannelName keys this transport's durable checkpoint.
const ChannelName = "telegram"

// MaxMessageLen is the Bot API limit for one sendMessage text, in runes.
const MaxMessageLen = 4096

// Config configures a Client.
type Config struct {
	BaseURL string // default https://api.telegram.org
	Token   string
	ChatID  string
	// SendRPS throttles sendMessage; 0 disables throttling.
	SendRPS float64
	// Timeout bounds each HTTP round trip.
	Timeout time.Duration
}

// Client is a Telegram Bot API client bound to a single chat.
type Client struct {
	base    string
	chatID  string
	http    *http.Client
	limiter *rate.Limiter

	mu     sync.Mutex
	offset int64
}

// New returns a Client for cfg.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		base:   base + "/bot" + cfg.Token,
		chatID: strings.TrimSpace(cfg.ChatID),
		http:   &http.Client{Timeout: timeout},
	}
	if cfg.SendRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SendRPS), 1)
	}
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Date int64  `json:"date"`
		Text string `json:"text"`
		From *struct {
			FirstName string `json:"first_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Poll fetches pending updates and returns text messages from the
// configured chat. Updates from other chats and non-text updates are
// skipped; when they lead the batch the local offset moves past them so
// they are confirmed by the next request.
func (c *Client) Poll(ctx context.Context) ([]domain.InboundMessage, error) {
	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()

	q := url.Values{}
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}
	q.Set("timeout", "0")
	q.Set("allowed_updates", `["message"]`)

	var ups []update
	if err := c.call(ctx, http.MethodGet, "getUpdates", q, nil, &ups); err != nil {
		return nil, err
	}

	var out []domain.InboundMessage
	skipTo := int64(0)
	for _, u := range ups {
		if u.UpdateID < offset {
			continue
		}
		m := u.Message
		if m == nil || strings.TrimSpace(m.Text) == "" || strconv.FormatInt(m.Chat.ID, 10) != c.chatID {
			if len(out) == 0 {
				skipTo = u.UpdateID + 1
			}
			continue
		}
		msg := domain.InboundMessage{
			Text:       m.Text,
			ReceivedAt: time.Unix(m.Date, 0).UTC(),
			Marker:     u.UpdateID,
		}
		if m.From != nil {
			msg.Sender = firstNonEmpty(m.From.FirstName, m.From.Username)
		}
		out = append(out, msg)
	}
	if skipTo > 0 {
		c.advance(skipTo)
	}
	return out, nil
}

// Clear confirms updates up to and including marker. Telegram treats a
// getUpdates call with offset marker+1 as the acknowledgement.
func (c *Client) Clear(ctx context.Context, marker int64) error {
	c.advance(marker + 1)
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(c.Offset(), 10))
	q.Set("limit", "1")
	q.Set("timeout", "0")
	return c.call(ctx, http.MethodGet, "getUpdates", q, nil, nil)
}

func (c *Client) advance(offset int64) {
	c.mu.Lock()
	if offset > c.offset {
		c.offset = offset
	}
	c.mu.Unlock()
}

// Offset returns the next update id Poll will request.
func (c *Client) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Send delivers text as plain text (no parse mode), split into chunks of at
// most MaxMessageLen runes.
func (c *Client) Send(ctx context.Context, text string) error {
	for _, part := range Split(text, MaxMessageLen) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		body := map[string]string{"chat_id": c.chatID, "text": part}
		if err := c.call(ctx, http.MethodPost, "sendMessage", nil, body, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, apiMethod string, q url.Values, body any, out any) error {
	u := c.base + "/" + apiMethod
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("telegram %s: encode: %w", apiMethod, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", apiMethod, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL embeds the bot token; never surface it.
		return fmt.Errorf("telegram %s: request failed: %w", apiMethod, redact(err))
	}
	defer resp.Body.Close()

	var ar apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&ar); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Method: apiMethod, StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("telegram %s: decode: %w", apiMethod, err)
	}
	if !ar.OK || resp.StatusCode >= 300 {
		e := &APIError{Method: apiMethod, StatusCode: resp.StatusCode, Code: ar.ErrorCode, Description: ar.Description}
		if ar.Parameters != nil {
			e.RetryAfter = time.Duration(ar.Parameters.RetryAfter) * time.Second
		}
		return e
	}
	if out != nil && len(ar.Result) > 0 {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", apiMethod, err)
		}
	}
	return nil
}

// Split breaks text into pieces of at most max runes, preferring newline
// boundaries.
func Split(text string, max int) []string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > max {
		cut := max
		for i := max; i > max/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func redact(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}
