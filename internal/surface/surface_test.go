package surface

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
	"github.com/insightdelivered/bank-sms-notifier/internal/notify"
)

func testPayload(newest bool) notify.Payload {
	ts := time.Date(2025, 8, 11, 10, 33, 0, 0, time.UTC)
	acct := "103811795555"
	tx := models.Transaction{
		Bank:          models.BankVietinBank,
		Sender:        "VietinBank",
		Timestamp:     &ts,
		AccountNumber: &acct,
		Type:          models.TypeDebit,
		Amount:        4000000,
		Balance:       63908063,
		Description:   "chuyen tien",
	}
	return notify.NewPayload("slot-1", tx, newest, false)
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	s := NewLog(zerolog.New(&buf))

	h, err := s.Create(notify.Rect{X: 1360, Y: 10}, testPayload(true))
	require.NoError(t, err)
	assert.False(t, s.IsDestroyed(h))
	assert.Equal(t, 1, s.Live())
	assert.Contains(t, buf.String(), "-4,000,000 VND")

	require.NoError(t, s.UpdateGeometry(h, notify.Rect{X: 1360, Y: 230}))
	require.NoError(t, s.SendPayload(h, testPayload(false)))
	require.NoError(t, s.Destroy(h))
	assert.True(t, s.IsDestroyed(h))
	assert.Equal(t, 0, s.Live())

	assert.ErrorIs(t, s.Destroy(h), notify.ErrSurfaceDestroyed)
	assert.ErrorIs(t, s.UpdateGeometry(h, notify.Rect{}), notify.ErrSurfaceDestroyed)
	assert.ErrorIs(t, s.SendPayload(h, testPayload(false)), notify.ErrSurfaceDestroyed)
}

type fakeMessenger struct {
	nextID   int
	sent     []string
	edits    []string
	deleted  []int
	sendErr  error
	editErr  error
	deleteErr error
}

func (f *fakeMessenger) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	text := what.(string)
	f.sent = append(f.sent, text)
	return &telebot.Message{ID: f.nextID, Text: text, Chat: to.(*telebot.Chat)}, nil
}

func (f *fakeMessenger) Edit(msg telebot.Editable, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, what.(string))
	m := *msg.(*telebot.Message)
	m.Text = what.(string)
	return &m, nil
}

func (f *fakeMessenger) Delete(msg telebot.Editable) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, msg.(*telebot.Message).ID)
	return nil
}

func TestTelegram_Lifecycle(t *testing.T) {
	bot := &fakeMessenger{}
	s := NewTelegram(bot, 42, zerolog.Nop())

	h, err := s.Create(notify.Rect{}, testPayload(true))
	require.NoError(t, err)
	require.Len(t, bot.sent, 1)
	assert.True(t, strings.HasPrefix(bot.sent[0], "🔔 VietinBank"))
	assert.Contains(t, bot.sent[0], "TK: 103811795555")
	assert.Contains(t, bot.sent[0], "ND: chuyen tien")

	require.NoError(t, s.UpdateGeometry(h, notify.Rect{Y: 220}))
	assert.Empty(t, bot.edits)

	require.NoError(t, s.SendPayload(h, testPayload(false)))
	require.Len(t, bot.edits, 1)
	assert.True(t, strings.HasPrefix(bot.edits[0], "VietinBank"))

	require.NoError(t, s.Destroy(h))
	assert.Equal(t, []int{1}, bot.deleted)
	assert.True(t, s.IsDestroyed(h))
	assert.ErrorIs(t, s.Destroy(h), notify.ErrSurfaceDestroyed)
	assert.ErrorIs(t, s.SendPayload(h, testPayload(true)), notify.ErrSurfaceDestroyed)
}

func TestTelegram_Errors(t *testing.T) {
	bot := &fakeMessenger{sendErr: errors.New("network down")}
	s := NewTelegram(bot, 42, zerolog.Nop())

	_, err := s.Create(notify.Rect{}, testPayload(true))
	require.Error(t, err)

	bot.sendErr = nil
	h, err := s.Create(notify.Rect{}, testPayload(true))
	require.NoError(t, err)

	bot.editErr = errors.New("telegram: Bad Request: message is not modified (400)")
	assert.NoError(t, s.SendPayload(h, testPayload(true)))

	bot.editErr = errors.New("telegram: Forbidden (403)")
	assert.Error(t, s.SendPayload(h, testPayload(false)))
}

func TestNewBot_RequiresToken(t *testing.T) {
	_, err := NewBot("")
	assert.Error(t, err)
}

type failingSurface struct{ notify.Surface }

func (failingSurface) Create(notify.Rect, notify.Payload) (notify.Handle, error) {
	return "", errors.New("display unavailable")
}

func TestFanout(t *testing.T) {
	a := NewLog(zerolog.Nop())
	b := NewLog(zerolog.Nop())
	f := NewFanout(zerolog.Nop(), a, failingSurface{}, b)

	h, err := f.Create(notify.Rect{}, testPayload(true))
	require.NoError(t, err)
	assert.Equal(t, 1, a.Live())
	assert.Equal(t, 1, b.Live())

	require.NoError(t, f.UpdateGeometry(h, notify.Rect{Y: 220}))
	require.NoError(t, f.SendPayload(h, testPayload(false)))

	// One member closing its popup on its own does not fail the others.
	ah := notify.Handle("log-1")
	require.NoError(t, a.Destroy(ah))
	require.NoError(t, f.SendPayload(h, testPayload(true)))

	require.NoError(t, f.Destroy(h))
	assert.Equal(t, 0, b.Live())
	assert.True(t, f.IsDestroyed(h))
	assert.ErrorIs(t, f.Destroy(h), notify.ErrSurfaceDestroyed)
}

func TestFanout_AllFail(t *testing.T) {
	f := NewFanout(zerolog.Nop(), failingSurface{})
	_, err := f.Create(notify.Rect{}, testPayload(true))
	assert.Error(t, err)

	empty := NewFanout(zerolog.Nop())
	_, err = empty.Create(notify.Rect{}, testPayload(true))
	assert.Error(t, err)
}

func TestFanout_WithManager(t *testing.T) {
	a := NewLog(zerolog.Nop())
	cfg := notify.DefaultConfig()
	cfg.AutoExpire = 0
	m, err := notify.NewManager(cfg, NewFanout(zerolog.Nop(), a))
	require.NoError(t, err)
	defer m.Shutdown()

	_, ok := m.Admit(models.Transaction{Bank: models.BankVietcombank, Type: models.TypeCredit, Amount: 1})
	require.True(t, ok)
	assert.Equal(t, 1, a.Live())

	m.CloseAll()
	assert.Equal(t, 0, a.Live())
}
