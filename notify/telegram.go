// Package notify delivers order notifications to the shop owner's Telegram chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Telegram Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// MaxMessageLength is Telegram's limit on message text.
const MaxMessageLength = 4096

// ErrNotConfigured is returned when the bot token or chat id is missing.
var ErrNotConfigured = errors.New("notify: telegram credentials not configured")

// APIError is an error answer from the Bot API.
type APIError struct {
	Status      int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Status, e.Description)
}

// Telegram sends Markdown messages to one chat. The fields are read on the
// first Send and must not change afterwards.
type Telegram struct {
	Token      string
	ChatID     string
	BaseURL    string
	HTTPClient *http.Client

	// Limiter throttles outbound messages. Nil means unthrottled.
	Limiter *rate.Limiter

	once   sync.Once
	bot    *bot.Bot
	botErr error
}

// NewTelegram returns a client limited to perSecond messages with the given burst.
// perSecond <= 0 disables throttling.
func NewTelegram(token, chatID string, perSecond float64, burst int) *Telegram {
	t := &Telegram{
		Token:      token,
		ChatID:     chatID,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	if perSecond > 0 {
		t.Limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, burst))
	}
	return t
}

// Configured reports whether both credentials are set.
func (t *Telegram) Configured() bool {
	return t != nil && t.Token != "" && t.ChatID != ""
}

func (t *Telegram) client() (*bot.Bot, error) {
	t.once.Do(func() {
		base := t.BaseURL
		if base == "" {
			base = DefaultBaseURL
		}
		httpClient := t.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 10 * time.Second}
		}
		t.bot, t.botErr = bot.New(t.Token,
			bot.WithSkipGetMe(),
			bot.WithServerURL(strings.TrimRight(base, "/")),
			bot.WithHTTPClient(httpClient.Timeout, httpClient),
		)
		if t.botErr != nil {
			t.botErr = fmt.Errorf("notify: failed to create bot client: %w", t.botErr)
		}
	})
	return t.bot, t.botErr
}

// Send posts message to the chat. It waits for the limiter, so a cancelled
// ctx aborts a throttled send.
func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.Configured() {
		return ErrNotConfigured
	}
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("notify: throttled: %w", err)
		}
	}

	b, err := t.client()
	if err != nil {
		return err
	}
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.ChatID,
		Text:      message,
		ParseMode: models.ParseModeMarkdownV1,
	})
	if err != nil {
		return sendError(err)
	}
	return nil
}

var statusErrors = []struct {
	err    error
	status int
}{
	{bot.ErrorBadRequest, http.StatusBadRequest},
	{bot.ErrorUnauthorized, http.StatusUnauthorized},
	{bot.ErrorForbidden, http.StatusForbidden},
	{bot.ErrorNotFound, http.StatusNotFound},
	{bot.ErrorConflict, http.StatusConflict},
}

// Other error codes only appear in the library's message text.
var otherStatus = regexp.MustCompile(`error response from telegram for method \w+, (\d+) (.*)$`)

// sendError maps the bot library's errors onto APIError.
func sendError(err error) error {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &APIError{Status: http.StatusTooManyRequests, Description: tooMany.Message}
	}
	for _, se := range statusErrors {
		if errors.Is(err, se.err) {
			desc := strings.TrimPrefix(err.Error(), se.err.Error()+", ")
			return &APIError{Status: se.status, Description: desc}
		}
	}
	if m := otherStatus.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return &APIError{Status: status, Description: m[2]}
	}

	// The URL carries the bot token; keep it out of logs.
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	return fmt.Errorf("notify: send failed: %w", err)
}
