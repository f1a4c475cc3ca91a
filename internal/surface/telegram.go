package surface

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/telebot.v3"

	"github.com/insightdelivered/bank-sms-notifier/internal/notify"
)

// Messenger is the subset of *telebot.Bot used by Telegram.
type Messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Edit(msg telebot.Editable, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Delete(msg telebot.Editable) error
}

// NewBot connects a send-only bot. The poller is configured but never
// started.
func NewBot(token string) (*telebot.Bot, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	return telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
}

// Telegram mirrors each popup as a chat message. Payload updates edit the
// message in place and destroying the popup deletes it. Geometry has no
// meaning in a chat and is ignored.
type Telegram struct {
	bot  Messenger
	chat *telebot.Chat
	log  zerolog.Logger

	mu   sync.Mutex
	msgs map[notify.Handle]*telebot.Message
}

// NewTelegram returns a surface posting to chatID through bot.
func NewTelegram(bot Messenger, chatID int64, l zerolog.Logger) *Telegram {
	return &Telegram{
		bot:  bot,
		chat: &telebot.Chat{ID: chatID},
		log:  l.With().Str("component", "telegram").Logger(),
		msgs: make(map[notify.Handle]*telebot.Message),
	}
}

func (t *Telegram) Create(_ notify.Rect, p notify.Payload) (notify.Handle, error) {
	msg, err := t.bot.Send(t.chat, render(p), telebot.NoPreview)
	if err != nil {
		return "", fmt.Errorf("sending telegram message: %w", err)
	}

	h := notify.Handle(fmt.Sprintf("tg-%d-%d", t.chat.ID, msg.ID))
	t.mu.Lock()
	t.msgs[h] = msg
	t.mu.Unlock()
	t.log.Debug().Int("message", msg.ID).Str("slot", p.SlotID).Msg("popup sent")
	return h, nil
}

func (t *Telegram) UpdateGeometry(h notify.Handle, _ notify.Rect) error {
	if t.IsDestroyed(h) {
		return notify.ErrSurfaceDestroyed
	}
	return nil
}

func (t *Telegram) SendPayload(h notify.Handle, p notify.Payload) error {
	t.mu.Lock()
	msg, ok := t.msgs[h]
	t.mu.Unlock()
	if !ok {
		return notify.ErrSurfaceDestroyed
	}

	edited, err := t.bot.Edit(msg, render(p), telebot.NoPreview)
	if err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("editing telegram message: %w", err)
	}
	if edited != nil {
		t.mu.Lock()
		if _, ok := t.msgs[h]; ok {
			t.msgs[h] = edited
		}
		t.mu.Unlock()
	}
	return nil
}

func (t *Telegram) Destroy(h notify.Handle) error {
	t.mu.Lock()
	msg, ok := t.msgs[h]
	delete(t.msgs, h)
	t.mu.Unlock()
	if !ok {
		return notify.ErrSurfaceDestroyed
	}

	if err := t.bot.Delete(msg); err != nil {
		return fmt.Errorf("deleting telegram message: %w", err)
	}
	return nil
}

func (t *Telegram) IsDestroyed(h notify.Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.msgs[h]
	return !ok
}

// render formats a payload as plain message text.
func render(p notify.Payload) string {
	var b strings.Builder
	if p.Newest {
		b.WriteString("🔔 ")
	}
	b.WriteString(p.Title)
	b.WriteString("\n")
	b.WriteString(p.Amount)
	b.WriteString("\nSD: ")
	b.WriteString(p.Balance)
	if p.Account != "" {
		b.WriteString("\nTK: ")
		b.WriteString(p.Account)
	}
	if p.Description != "" {
		b.WriteString("\nND: ")
		b.WriteString(p.Description)
	}
	if p.Time != "" {
		b.WriteString("\n")
		b.WriteString(p.Time)
	}
	return b.String()
}
