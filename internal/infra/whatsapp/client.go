package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/time/rate"
)

const addressPrefix = "whatsapp:"

type Config struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	Timeout    time.Duration
	ChunkSize  int
	RPS        float64
	Burst      int
}

// Client sends WhatsApp messages through a Twilio-compatible Messages API.
type Client struct {
	http      *http.Client
	logger    *slog.Logger
	limiter   *rate.Limiter
	endpoint  string
	sid       string
	token     string
	from      string
	chunkSize int
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, fmt.Errorf("chat account sid, auth token and sender are required")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 3900
	}

	endpoint, err := url.JoinPath(cfg.BaseURL, "2010-04-01", "Accounts", cfg.AccountSID, "Messages.json")
	if err != nil {
		return nil, fmt.Errorf("build messages endpoint: %w", err)
	}

	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		endpoint:  endpoint,
		sid:       cfg.AccountSID,
		token:     cfg.AuthToken,
		from:      Address(cfg.From),
		chunkSize: cfg.ChunkSize,
	}, nil
}

// SendMessage delivers text to phone, split into chunks on line boundaries.
func (c *Client) SendMessage(ctx context.Context, phone, text string) error {
	for _, part := range SplitMessage(text, c.chunkSize) {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiting: %w", err)
		}
		if err := c.send(ctx, phone, part); err != nil {
			c.logger.Error("Failed to send chat message", "error", err, "phone", phone)
			return err
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, phone, body string) error {
	form := url.Values{}
	form.Set("To", Address(phone))
	form.Set("From", c.from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.sid, c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, apiErrorMessage(raw))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// apiErrorMessage extracts "message" from an API error body, falling back to the raw body.
func apiErrorMessage(raw []byte) string {
	var message string
	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "message" {
			return d.Skip()
		}
		v, err := d.Str()
		message = v
		return err
	})
	if err != nil || message == "" {
		return strings.TrimSpace(string(raw))
	}
	return message
}

// Address returns the channel address for a phone number.
func Address(phone string) string {
	if strings.HasPrefix(phone, addressPrefix) {
		return phone
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return addressPrefix + phone
}

// Phone strips the channel prefix from an inbound sender address.
func Phone(address string) string {
	return strings.TrimPrefix(strings.TrimSpace(address), addressPrefix)
}

// SplitMessage breaks text into parts of at most size runes, preferring line boundaries.
// Lines longer than size are cut hard.
func SplitMessage(text string, size int) []string {
	if len([]rune(text)) <= size {
		return []string{text}
	}

	var (
		parts   []string
		current []rune
	)
	flush := func() {
		if part := strings.TrimSpace(string(current)); part != "" {
			parts = append(parts, part)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line + "\n")
		if len(current)+len(runes) <= size {
			current = append(current, runes...)
			continue
		}
		flush()
		for len(runes) > size {
			parts = append(parts, string(runes[:size]))
			runes = runes[size:]
		}
		current = append(current, runes...)
	}
	flush()

	return parts
}

// Console logs outbound messages instead of sending them.
type Console struct {
	Logger *slog.Logger
}

func (c Console) SendMessage(_ context.Context, phone, text string) error {
	c.Logger.Info("Outbound chat message", "phone", phone, "text", text)
	return nil
}
