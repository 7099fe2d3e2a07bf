package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/unclebandit/broadcast-dispatcher/internal/config"
	"github.com/unclebandit/broadcast-dispatcher/internal/media"
)

// Telegram implements API with telebot. One bot per token is kept, built
// offline so no getMe round trip happens per campaign.
type Telegram struct {
	apiURL string
	client *http.Client

	mu   sync.Mutex
	bots map[string]*tele.Bot
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
	return &Telegram{
		apiURL: cfg.APIURL,
		client: &http.Client{Timeout: cfg.Timeout},
		bots:   map[string]*tele.Bot{},
	}
}

func (t *Telegram) bot(token string) (*tele.Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.bots[token]; ok {
		return b, nil
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     t.apiURL,
		Token:   token,
		Client:  t.client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	t.bots[token] = b
	return b, nil
}

// chat addresses a destination by numeric id or @username.
type chat string

func (c chat) Recipient() string { return string(c) }

func (t *Telegram) SendURL(ctx context.Context, token, chatID string, kind media.Kind, url, caption string) error {
	b, err := t.bot(token)
	if err != nil {
		return err
	}
	file := tele.FromURL(url)

	var what any
	switch kind {
	case media.KindPhoto:
		what = &tele.Photo{File: file, Caption: caption}
	case media.KindVideo:
		what = &tele.Video{File: file, Caption: caption, Streaming: true}
	default:
		what = &tele.Document{File: file, Caption: caption}
	}
	_, err = b.Send(chat(chatID), what)
	return translate(err)
}

func (t *Telegram) SendUpload(ctx context.Context, token, chatID string, kind media.Kind, up Upload, caption string) error {
	b, err := t.bot(token)
	if err != nil {
		return err
	}
	file := tele.FromReader(bytes.NewReader(up.Data))

	var what any
	switch kind {
	case media.KindPhoto:
		what = &tele.Photo{File: file, Caption: caption}
	case media.KindVideo:
		what = &tele.Video{File: file, Caption: caption, FileName: up.Name, MIME: up.MIME, Streaming: true}
	default:
		what = &tele.Document{File: file, Caption: caption, FileName: up.Name, MIME: up.MIME}
	}
	_, err = b.Send(chat(chatID), what)
	return translate(err)
}

// apiErrorText matches telebot's rendering of Bot API errors: "telegram: <text> (<code>)".
var apiErrorText = regexp.MustCompile(`^telegram: (.*) \((\d{3})\)$`)

func translate(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &APIError{Code: http.StatusTooManyRequests, Description: err.Error(), RetryAfter: flood.RetryAfter}
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return &APIError{Code: http.StatusTooManyRequests, Description: err.Error(), RetryAfter: floodPtr.RetryAfter}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return &APIError{Code: apiErr.Code, Description: apiErr.Description, RetryAfter: parseRetryAfter(apiErr.Description)}
	}
	if m := apiErrorText.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[2])
		return &APIError{Code: code, Description: m[1], RetryAfter: parseRetryAfter(m[1])}
	}
	return fmt.Errorf("telegram request: %w", err)
}
