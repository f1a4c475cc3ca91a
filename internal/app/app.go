// Package app wires the relay, store and popup stack into a running
// notifier.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-sms-notifier/internal/logger"
	"github.com/insightdelivered/bank-sms-notifier/internal/models"
	"github.com/insightdelivered/bank-sms-notifier/internal/notify"
	"github.com/insightdelivered/bank-sms-notifier/internal/relay"
	"github.com/insightdelivered/bank-sms-notifier/internal/store"
)

const (
	DefaultWatchdogSchedule = "@every 1m"
	DefaultStatsSchedule    = "0 21 * * *"

	queueSize   = 64
	saveTimeout = 10 * time.Second
)

// Store is the persistence the app needs.
type Store interface {
	Save(ctx context.Context, tx models.Transaction) store.SaveResult
	Stats(ctx context.Context, days int) (store.Stats, error)
	LatestBalances(ctx context.Context) ([]store.BankBalance, error)
}

// Popups is the popup stack.
type Popups interface {
	Admit(tx models.Transaction) (notify.SlotInfo, bool)
	Shutdown()
}

// Stream is the push relay.
type Stream interface {
	Connect()
	Status() relay.Status
	Close()
}

// App routes received transactions to storage and the popup stack and
// keeps the stream alive. Transactions are handled one at a time in
// arrival order on a worker goroutine.
type App struct {
	store    Store
	popups   Popups
	stream   Stream
	balances *BalanceTracker
	cron     *cron.Cron
	log      zerolog.Logger

	watchdogSpec string
	statsSpec    string

	incoming chan models.Transaction
	done     chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

// Option customises an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithWatchdogSchedule sets the cron spec of the stream watchdog. An
// empty spec disables it.
func WithWatchdogSchedule(spec string) Option {
	return func(a *App) { a.watchdogSpec = spec }
}

// WithStatsSchedule sets the cron spec of the daily summary. An empty
// spec disables it.
func WithStatsSchedule(spec string) Option {
	return func(a *App) { a.statsSpec = spec }
}

// New builds an App. Attach a stream with AttachStream before Start when
// live notifications are wanted.
func New(st Store, popups Popups, opts ...Option) *App {
	a := &App{
		store:        st,
		popups:       popups,
		balances:     NewBalanceTracker(),
		cron:         cron.New(),
		log:          zerolog.Nop(),
		watchdogSpec: DefaultWatchdogSchedule,
		statsSpec:    DefaultStatsSchedule,
		incoming:     make(chan models.Transaction, queueSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With().Str("component", "app").Logger()
	return a
}

// AttachStream sets the relay whose events feed the app.
func (a *App) AttachStream(s Stream) {
	a.stream = s
}

// Balances returns the tracker of latest balances.
func (a *App) Balances() *BalanceTracker {
	return a.balances
}

// Start seeds balances, schedules background jobs and connects the stream.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("app already started")
	}
	a.started = true
	a.mu.Unlock()

	if balances, err := a.store.LatestBalances(ctx); err != nil {
		a.log.Warn().Err(err).Msg("loading stored balances failed")
	} else {
		a.balances.Seed(balances)
	}

	if a.watchdogSpec != "" && a.stream != nil {
		if _, err := a.cron.AddFunc(a.watchdogSpec, a.checkStream); err != nil {
			return fmt.Errorf("invalid watchdog schedule %q: %w", a.watchdogSpec, err)
		}
	}
	if a.statsSpec != "" {
		if _, err := a.cron.AddFunc(a.statsSpec, a.reportStats); err != nil {
			return fmt.Errorf("invalid stats schedule %q: %w", a.statsSpec, err)
		}
	}

	go a.work()
	a.cron.Start()

	if a.stream != nil {
		a.stream.Connect()
	}
	a.log.Info().Bool("stream", a.stream != nil).Msg("notifier started")
	return nil
}

// HandleEvent is the relay event handler. It never blocks the relay: when
// the queue is full the transaction is dropped with a warning.
func (a *App) HandleEvent(ev relay.Event) {
	switch ev.Kind {
	case relay.EventConnected:
		a.log.Info().Msg("stream connected")
	case relay.EventDisconnected:
		a.log.Warn().Err(ev.Err).Msg("stream disconnected")
	case relay.EventError:
		e := a.log.Error().Err(ev.Err)
		if errors.Is(ev.Err, relay.ErrUnauthorized) {
			e = e.Str("hint", "check PUSHBULLET_API_KEY")
		}
		e.Msg("stream error")
	case relay.EventReceived:
		a.enqueue(ev.Transaction)
	}
}

func (a *App) enqueue(tx models.Transaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.incoming <- tx:
	default:
		a.log.Warn().Str("bank", string(tx.Bank)).Int64("amount", tx.Amount).Msg("transaction queue full, dropping")
	}
}

func (a *App) work() {
	defer close(a.done)
	for tx := range a.incoming {
		a.Deliver(context.Background(), tx)
	}
}

// Deliver saves tx, updates the balance tracker and shows a popup. A
// failed save is logged and does not stop the popup.
func (a *App) Deliver(ctx context.Context, tx models.Transaction) {
	ctx = logger.WithContext(ctx, logger.WithFields(a.log, map[string]interface{}{
		"bank":   string(tx.Bank),
		"type":   string(tx.Type),
		"amount": tx.Amount,
	}))
	a.save(ctx, tx)
	a.show(ctx, tx)
}

func (a *App) save(ctx context.Context, tx models.Transaction) {
	log := logger.FromContext(ctx)

	saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	res := a.store.Save(saveCtx, tx)
	cancel()
	if !res.Success {
		log.Warn().Str("error", res.Error).Msg("saving transaction failed")
	} else {
		log.Debug().Str("id", res.ID).Msg("transaction saved")
	}

	if delta, known := a.balances.Observe(tx); known && delta != 0 {
		log.Info().Int64("balance", tx.Balance).Int64("delta", delta).Msg("balance changed")
	}
}

func (a *App) show(ctx context.Context, tx models.Transaction) {
	log := logger.FromContext(ctx)
	if _, ok := a.popups.Admit(tx); !ok {
		log.Warn().Msg("popup not shown")
		return
	}
	log.Info().Msg("transaction notified")
}

// checkStream reconnects a stream that gave up or dropped without a
// pending retry.
func (a *App) checkStream() {
	st := a.stream.Status()
	if st.Exhausted || (st.State == relay.Disconnected.String() && !st.ReconnectPending) {
		a.log.Info().Bool("exhausted", st.Exhausted).Int("attempts", st.ReconnectAttempts).Msg("watchdog reconnecting stream")
		a.stream.Connect()
	}
}

func (a *App) reportStats() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	st, err := a.store.Stats(ctx, 1)
	if err != nil {
		a.log.Warn().Err(err).Msg("daily stats failed")
		return
	}
	a.log.Info().
		Int64("transactions", st.TotalTransactions).
		Int64("incoming", st.TotalIncoming).
		Int64("outgoing", st.TotalOutgoing).
		Int64("net", st.NetAmount).
		Int64("totalBalance", a.balances.Total()).
		Strs("banks", st.Banks).
		Msg("daily summary")
}

// Shutdown stops background jobs and closes the stream. Queued
// transactions are drained before every popup is closed. Later calls
// are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	started := a.started
	a.mu.Unlock()

	var errs []error
	select {
	case <-a.cron.Stop().Done():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for scheduled jobs: %w", ctx.Err()))
	}

	if a.stream != nil {
		a.stream.Close()
	}

	a.mu.Lock()
	close(a.incoming)
	a.mu.Unlock()

	if started {
		select {
		case <-a.done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("draining transactions: %w", ctx.Err()))
		}
	}

	a.popups.Shutdown()
	a.log.Info().Msg("notifier stopped")
	return errors.Join(errs...)
}
