package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/insightdelivered/bank-sms-notifier/internal/clock"
	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

const (
	vietinSMS = "11/08/2025 10:33|TK:103811795555|GD:-4,000,000VND|SDC:63,908,063VND|ND:CT DI:610K2580GPLHU0GZ TRINH MINH THOM chuyen tien; tai iPay"
	vcbSMS    = "SD TK 0811000010904 +1,400,000VND luc 11-08-2025 11:26:18. SD 29,796,653VND. Ref TKP#NP82501242920449VCB"
)

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.frames:
		return websocket.TextMessage, b, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	err   error
	urls  []string
	conns []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

type fakeAPI struct {
	mu            sync.Mutex
	user          *User
	meErr         error
	pushes        []Push
	historyCalls  int
	limit         int
	modifiedAfter time.Time
}

func (a *fakeAPI) Me(context.Context) (*User, error) {
	return a.user, a.meErr
}

func (a *fakeAPI) History(_ context.Context, limit int, modifiedAfter time.Time) ([]Push, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.historyCalls++
	a.limit = limit
	a.modifiedAfter = modifiedAfter
	return a.pushes, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) received() []models.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, ev := range r.events {
		if ev.Kind == EventReceived {
			out = append(out, ev.Transaction)
		}
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

var start = time.Date(2025, 8, 11, 4, 0, 0, 0, time.UTC)

type harness struct {
	client *StreamClient
	dialer *fakeDialer
	api    *fakeAPI
	sched  *clock.Fake
	rec    *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dialer: &fakeDialer{},
		api:    &fakeAPI{user: &User{Name: "Thom", Email: "thom@example.com"}},
		sched:  clock.NewFake(start),
		rec:    &recorder{},
	}
	c, err := NewStreamClient("o.secretkey1234", h.rec.handle,
		WithDialer(h.dialer),
		WithAPI(h.api),
		WithScheduler(h.sched),
		WithStreamURL("wss://stream.test/websocket/"),
		WithHistoryLimiter(rate.NewLimiter(rate.Inf, 0)),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	h.client = c
	return h
}

func (h *harness) connect(t *testing.T) *fakeConn {
	t.Helper()
	n := h.rec.count(EventConnected)
	h.client.Connect()
	require.Eventually(t, func() bool { return h.rec.count(EventConnected) == n+1 }, time.Second, time.Millisecond)
	return h.dialer.lastConn()
}

func (h *harness) waitPending(t *testing.T, want []time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, h.sched.Pending())
	}, time.Second, time.Millisecond, "pending timers: %v", h.sched.Pending())
}

func send(t *testing.T, conn *fakeConn, msg StreamMessage) {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	conn.frames <- b
}

func smsChanged(title, body, thread string, ts float64) StreamMessage {
	return StreamMessage{Type: MessagePush, Push: &Push{
		Type: PushSMSChanged,
		Notifications: []Notification{
			{ThreadID: thread, Title: title, Body: body, Timestamp: ts},
		},
	}}
}

func TestNewStreamClientRequiresKey(t *testing.T) {
	_, err := NewStreamClient("  ", nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestReconnectDelay(t *testing.T) {
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second}
	for i, d := range want {
		assert.Equal(t, d, ReconnectDelay(i+1))
	}
}

func TestBackoffUntilExhausted(t *testing.T) {
	h := newHarness(t)
	h.dialer.setErr(errors.New("network down"))

	h.client.Connect()
	for attempt := 1; attempt <= MaxReconnectAttempts; attempt++ {
		delay := ReconnectDelay(attempt)
		h.waitPending(t, []time.Duration{delay})
		assert.Equal(t, attempt, h.client.Status().ReconnectAttempts)
		h.sched.Advance(delay)
	}

	require.Eventually(t, func() bool { return h.client.Status().Exhausted }, time.Second, time.Millisecond)
	assert.Empty(t, h.sched.Pending(), "no attempt is scheduled after the last one fails")
	assert.Equal(t, MaxReconnectAttempts+1, h.dialer.dials())
	assert.ErrorIs(t, h.rec.last().Err, ErrRetriesExhausted)
	assert.Equal(t, 0, h.rec.count(EventDisconnected))
	assert.Equal(t, "wss://stream.test/websocket/o.secretkey1234", h.dialer.urls[0])

	// A fresh Connect from the owner starts over.
	h.dialer.setErr(nil)
	h.connect(t)
	st := h.client.Status()
	assert.True(t, st.Connected)
	assert.False(t, st.Exhausted)
	assert.Equal(t, 0, st.ReconnectAttempts)
}

func TestReceivedTransactionCarriesMetadata(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	send(t, conn, smsChanged("Mom", "an com chua?", "7", 1754884000))
	send(t, conn, smsChanged("VietinBank", vietinSMS, "3", 1754883180))

	require.Eventually(t, func() bool { return len(h.rec.received()) == 1 }, time.Second, time.Millisecond)
	tx := h.rec.received()[0]
	assert.Equal(t, models.BankVietinBank, tx.Bank)
	assert.Equal(t, models.TypeDebit, tx.Type)
	assert.Equal(t, int64(4000000), tx.Amount)
	assert.Equal(t, "VietinBank", tx.OriginalSender)
	assert.Equal(t, "3", tx.PhoneNumber)
	require.NotNil(t, tx.ReceivedAt)
	assert.Equal(t, int64(1754883180), tx.ReceivedAt.Unix())
	assert.Equal(t, 1, h.rec.count(EventConnected))
	assert.Equal(t, 0, h.rec.count(EventError))
}

func TestMirrorFiltering(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	send(t, conn, StreamMessage{Type: MessagePush, Push: &Push{
		Type: PushMirror, ApplicationName: "Gmail", Title: "Vietcombank", Body: vcbSMS, Created: 1754886378,
	}})
	send(t, conn, StreamMessage{Type: "nop"})
	send(t, conn, StreamMessage{Type: MessagePush, Push: &Push{Type: "dismissal"}})
	send(t, conn, StreamMessage{Type: MessagePush, Push: &Push{
		Type: PushMirror, ApplicationName: "Google Messages", Title: "Vietcombank", Body: vcbSMS, Created: 1754886378,
	}})

	require.Eventually(t, func() bool { return len(h.rec.received()) == 1 }, time.Second, time.Millisecond)
	tx := h.rec.received()[0]
	assert.Equal(t, models.BankVietcombank, tx.Bank)
	assert.Equal(t, models.TypeCredit, tx.Type)
	assert.Equal(t, int64(29796653), tx.Balance)
}

func TestDuplicateMessagesDropped(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	msg := smsChanged("VietinBank", vietinSMS, "3", 1754883180)
	send(t, conn, msg)
	send(t, conn, msg)
	send(t, conn, smsChanged("Vietcombank", vcbSMS, "4", 1754886378))

	require.Eventually(t, func() bool { return len(h.rec.received()) == 2 }, time.Second, time.Millisecond)
	got := h.rec.received()
	assert.Equal(t, models.BankVietinBank, got[0].Bank)
	assert.Equal(t, models.BankVietcombank, got[1].Bank)
}

func TestTickleFetchesHistory(t *testing.T) {
	h := newHarness(t)
	h.api.pushes = []Push{
		{Type: "note", Title: "shopping", Body: "milk"},
		{Type: PushMirror, ApplicationName: "Messages", Title: "VietinBank", Body: vietinSMS, Created: 1754883180},
	}
	conn := h.connect(t)

	send(t, conn, StreamMessage{Type: MessageTickle, Subtype: "push"})

	require.Eventually(t, func() bool { return len(h.rec.received()) == 1 }, time.Second, time.Millisecond)
	h.api.mu.Lock()
	defer h.api.mu.Unlock()
	assert.Equal(t, 1, h.api.historyCalls)
	assert.Equal(t, HistoryLimit, h.api.limit)
	assert.Equal(t, start.Add(-HistoryWindow), h.api.modifiedAfter)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	h.client.Disconnect()
	h.client.Disconnect()

	assert.True(t, conn.isClosed())
	assert.Equal(t, 1, h.rec.count(EventDisconnected))
	assert.Empty(t, h.sched.Pending())
	assert.Equal(t, "disconnected", h.client.Status().State)
}

func TestStreamCloseSchedulesReconnect(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	conn.Close()
	require.Eventually(t, func() bool { return h.rec.count(EventDisconnected) == 1 }, time.Second, time.Millisecond)
	h.waitPending(t, []time.Duration{5 * time.Second})
	assert.False(t, h.client.Status().Connected)

	h.sched.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return h.rec.count(EventConnected) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, h.client.Status().ReconnectAttempts)
	assert.Equal(t, 1, h.rec.count(EventDisconnected))
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	h := newHarness(t)
	h.dialer.setErr(errors.New("refused"))

	h.client.Connect()
	h.waitPending(t, []time.Duration{5 * time.Second})

	h.client.Disconnect()
	assert.Empty(t, h.sched.Pending())
	h.sched.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.dials())
	assert.Equal(t, 0, h.rec.count(EventDisconnected))
}

func TestTestConnectionAndStatus(t *testing.T) {
	h := newHarness(t)

	res := h.client.TestConnection(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, "Thom", res.User.Name)

	h.api.meErr = ErrUnauthorized
	res = h.client.TestConnection(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, ErrUnauthorized.Error(), res.Error)

	st := h.client.Status()
	assert.Equal(t, "***1234", st.APIKey)
	assert.Equal(t, "disconnected", st.State)
	assert.Equal(t, 0, h.dialer.dials(), "testing the credential never dials the stream")
}

func TestCloseStopsClient(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	h.client.Close()
	h.client.Close()
	h.client.Connect()

	assert.True(t, conn.isClosed())
	assert.Equal(t, 1, h.dialer.dials())
	assert.Equal(t, 1, h.rec.count(EventDisconnected))
}

type gatedDialer struct {
	entered chan struct{}
	release chan struct{}
	conn    *fakeConn
}

func (d *gatedDialer) Dial(context.Context, string) (Conn, error) {
	close(d.entered)
	<-d.release
	return d.conn, nil
}

func TestCloseDuringDialClosesLateConnection(t *testing.T) {
	d := &gatedDialer{entered: make(chan struct{}), release: make(chan struct{}), conn: newFakeConn()}
	rec := &recorder{}
	c, err := NewStreamClient("o.secretkey1234", rec.handle, WithDialer(d), WithScheduler(clock.NewFake(start)))
	require.NoError(t, err)

	c.Connect()
	<-d.entered
	c.Close()
	close(d.release)

	require.Eventually(t, d.conn.isClosed, time.Second, time.Millisecond)
	assert.Equal(t, 0, rec.count(EventConnected))
}
