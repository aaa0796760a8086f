// Package translate calls the RapidAPI Google Translate endpoint to turn
// Spanish titles into English.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/metrics"
	"github.com/JakeFAU/opinion-crawler/internal/policy/ratelimit"
)

// Defaults for the RapidAPI translator.
const (
	DefaultEndpoint = "https://google-translate113.p.rapidapi.com/api/v1/translator/text"
	DefaultHost     = "google-translate113.p.rapidapi.com"
	DefaultTimeout  = 15 * time.Second
	MaxInputRunes   = 1000
)

var (
	// ErrInvalidInput is returned, without any network call, for blank text.
	ErrInvalidInput = errors.New("translate: invalid input")
	// ErrInvalidResponse is returned for non-2xx replies and bodies without a translation.
	ErrInvalidResponse = errors.New("translate: invalid response")
)

// Config holds translation client configuration.
type Config struct {
	APIKey   string
	Endpoint string
	Host     string
	From     string
	To       string
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.From == "" {
		c.From = "es"
	}
	if c.To == "" {
		c.To = "en"
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Client translates text through a rate limiter.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

type request struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type response struct {
	Trans string `json:"trans"`
}

// New builds a Client. A nil limiter means no throttling.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("content-type", "application/json").
		SetHeader("x-rapidapi-host", cfg.Host).
		SetHeader("x-rapidapi-key", cfg.APIKey)
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}
}

// TranslateToEnglish returns the English translation of text. Every failure is
// logged and returned; callers should substitute a placeholder and carry on.
func (c *Client) TranslateToEnglish(ctx context.Context, text string) (string, error) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		c.logger.Warn("Invalid text supplied for translation")
		metrics.ObserveTranslation("invalid_input")
		return "", ErrInvalidInput
	}
	clean = truncateRunes(clean, MaxInputRunes)

	translated, err := ratelimit.Do(ctx, c.limiter, func(ctx context.Context) (string, error) {
		return c.call(ctx, clean)
	})
	if err != nil {
		c.logger.Error("Translation API error", zap.Error(err))
		metrics.ObserveTranslation("failed")
		return "", err
	}
	metrics.ObserveTranslation("ok")
	return translated, nil
}

func (c *Client) call(ctx context.Context, text string) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(request{From: c.cfg.From, To: c.cfg.To, Text: text}).
		Post(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	if !res.IsSuccess() {
		return "", fmt.Errorf("%w: status %d", ErrInvalidResponse, res.StatusCode())
	}

	var out response
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if strings.TrimSpace(out.Trans) == "" {
		c.logger.Warn("Unexpected translation response", zap.ByteString("body", res.Body()))
		return "", fmt.Errorf("%w: missing trans field", ErrInvalidResponse)
	}
	return out.Trans, nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
