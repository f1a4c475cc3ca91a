// Package notify keeps a bounded, ordered stack of transaction popups on
// screen. All state is owned by a single event loop goroutine; timers and
// callers reach it by posting closures.
package notify

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-sms-notifier/internal/clock"
	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

// ReflowDelay debounces repositioning after removals.
const ReflowDelay = 100 * time.Millisecond

// Config controls stack capacity, expiry and placement.
type Config struct {
	MaxSlots   int
	AutoExpire time.Duration // 0 disables expiry
	Corner     Corner
	Metrics    Metrics
	WorkArea   Rect
	// Compact hides account and description in payloads.
	Compact bool
}

// DefaultConfig mirrors the desktop defaults on a 1920x1080 screen.
func DefaultConfig() Config {
	return Config{
		MaxSlots:   4,
		AutoExpire: 5 * time.Minute,
		Corner:     TopRight,
		Metrics:    RegularMetrics,
		WorkArea:   Rect{Width: 1920, Height: 1080},
	}
}

func (c Config) validate() error {
	if c.MaxSlots < 1 {
		return errors.New("max slots must be at least 1")
	}
	if c.AutoExpire < 0 {
		return errors.New("auto expire must not be negative")
	}
	if _, err := ParseCorner(string(c.Corner)); err != nil {
		return err
	}
	if c.Metrics.Width <= 0 || c.Metrics.Height <= 0 {
		return errors.New("popup metrics must be positive")
	}
	return nil
}

// SlotInfo is a read-only view of a live popup.
type SlotInfo struct {
	ID          string             `json:"id"`
	Ordinal     int                `json:"ordinal"`
	Newest      bool               `json:"newest"`
	CreatedAt   time.Time          `json:"createdAt"`
	Age         time.Duration      `json:"age"`
	Geometry    Rect               `json:"geometry"`
	Transaction models.Transaction `json:"transaction"`
}

type slot struct {
	id        string
	handle    Handle
	createdAt time.Time
	tx        models.Transaction
	ordinal   int
	newest    bool
	geom      Rect
	expiry    clock.Timer
}

// Manager owns the popup stack. Newest slot is at index 0.
type Manager struct {
	cfg     Config
	surface Surface
	sched   clock.Scheduler
	log     zerolog.Logger

	cmds    chan func()
	stopped chan struct{}

	// Loop-owned state.
	slots        []*slot
	reflowTimer  clock.Timer
	shuttingDown bool
	exit         bool
}

// Option customises a Manager.
type Option func(*Manager)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s clock.Scheduler) Option {
	return func(m *Manager) { m.sched = s }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager validates cfg and starts the event loop.
func NewManager(cfg Config, surface Surface, opts ...Option) (*Manager, error) {
	if surface == nil {
		return nil, errors.New("surface is required")
	}
	if cfg.Corner == "" {
		cfg.Corner = TopRight
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:     cfg,
		surface: surface,
		sched:   clock.Real(),
		log:     zerolog.Nop(),
		cmds:    make(chan func()),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With().Str("component", "notify").Logger()

	go m.run()
	return m, nil
}

func (m *Manager) run() {
	for fn := range m.cmds {
		fn()
		if m.exit {
			close(m.stopped)
			return
		}
	}
}

// do runs fn on the loop and waits for it. It reports false if the loop
// has already stopped.
func (m *Manager) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(done) }:
		<-done
		return true
	case <-m.stopped:
		return false
	}
}

// Admit shows tx as the newest popup, evicting the oldest when full.
// It returns false once Shutdown has begun or the surface refused to
// create the popup.
func (m *Manager) Admit(tx models.Transaction) (SlotInfo, bool) {
	var (
		info SlotInfo
		ok   bool
	)
	m.do(func() { info, ok = m.admit(tx) })
	return info, ok
}

// Remove closes the named popup. Unknown IDs are ignored.
func (m *Manager) Remove(id string) {
	m.do(func() { m.remove(id) })
}

// CloseAll closes every popup.
func (m *Manager) CloseAll() {
	m.do(m.closeAll)
}

// Shutdown closes every popup, cancels all timers and stops the loop.
// Later calls on the Manager are no-ops.
func (m *Manager) Shutdown() {
	m.do(func() {
		m.shuttingDown = true
		m.closeAll()
		m.exit = true
	})
}

// Slots returns the live popups, newest first.
func (m *Manager) Slots() []SlotInfo {
	var out []SlotInfo
	m.do(func() {
		now := m.sched.Now()
		out = make([]SlotInfo, 0, len(m.slots))
		for _, s := range m.slots {
			out = append(out, SlotInfo{
				ID:          s.id,
				Ordinal:     s.ordinal,
				Newest:      s.newest,
				CreatedAt:   s.createdAt,
				Age:         since(s.createdAt, now),
				Geometry:    s.geom,
				Transaction: s.tx,
			})
		}
	})
	return out
}

func (m *Manager) admit(tx models.Transaction) (SlotInfo, bool) {
	if m.shuttingDown {
		return SlotInfo{}, false
	}

	s := &slot{
		id:        uuid.NewString(),
		createdAt: m.sched.Now(),
		tx:        tx,
		newest:    true,
		geom:      m.geometry(0),
	}
	h, err := m.surface.Create(s.geom, NewPayload(s.id, tx, true, m.cfg.Compact))
	if err != nil {
		m.log.Warn().Err(err).Msg("creating popup failed")
		return SlotInfo{}, false
	}
	s.handle = h

	// Evict only once the new popup exists so a failed create keeps the stack.
	for len(m.slots) >= m.cfg.MaxSlots {
		oldest := m.slots[len(m.slots)-1]
		m.slots = m.slots[:len(m.slots)-1]
		m.log.Debug().Str("slot", oldest.id).Msg("evicting oldest popup")
		m.destroy(oldest)
	}

	m.slots = append([]*slot{s}, m.slots...)
	m.cancelReflow()
	m.reflow()

	if m.cfg.AutoExpire > 0 {
		id := s.id
		s.expiry = m.sched.AfterFunc(m.cfg.AutoExpire, func() {
			m.do(func() { m.remove(id) })
		})
	}

	return SlotInfo{
		ID:          s.id,
		Newest:      true,
		CreatedAt:   s.createdAt,
		Geometry:    s.geom,
		Transaction: tx,
	}, true
}

func (m *Manager) remove(id string) {
	for i, s := range m.slots {
		if s.id != id {
			continue
		}
		m.slots = append(m.slots[:i], m.slots[i+1:]...)
		m.destroy(s)
		m.scheduleReflow()
		return
	}
}

func (m *Manager) closeAll() {
	captured := m.slots
	m.slots = nil
	m.cancelReflow()
	for _, s := range captured {
		m.destroy(s)
	}
}

// reflow renumbers slots by position and pushes changed geometry and
// newest tags to the surface.
func (m *Manager) reflow() {
	for i, s := range m.slots {
		newest := i == 0
		geom := m.geometry(i)
		if s.ordinal != i || s.geom != geom {
			s.ordinal = i
			s.geom = geom
			m.present(m.surface.UpdateGeometry(s.handle, geom), s, "repositioning popup")
		}
		if s.newest != newest {
			s.newest = newest
			m.present(m.surface.SendPayload(s.handle, NewPayload(s.id, s.tx, newest, m.cfg.Compact)), s, "updating popup")
		}
	}
}

func (m *Manager) scheduleReflow() {
	m.cancelReflow()
	m.reflowTimer = m.sched.AfterFunc(ReflowDelay, func() {
		m.do(func() {
			m.reflowTimer = nil
			m.reflow()
		})
	})
}

func (m *Manager) cancelReflow() {
	if m.reflowTimer != nil {
		m.reflowTimer.Stop()
		m.reflowTimer = nil
	}
}

func (m *Manager) destroy(s *slot) {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	if m.surface.IsDestroyed(s.handle) {
		return
	}
	m.present(m.surface.Destroy(s.handle), s, "destroying popup")
}

// present logs surface failures. They never reach callers.
func (m *Manager) present(err error, s *slot, action string) {
	if err == nil {
		return
	}
	ev := m.log.Warn()
	if errors.Is(err, ErrSurfaceDestroyed) {
		ev = m.log.Debug()
	}
	ev.Err(err).Str("slot", s.id).Msg(action)
}

func (m *Manager) geometry(ordinal int) Rect {
	return Geometry(ordinal, m.cfg.Corner, m.cfg.Metrics, m.cfg.WorkArea)
}
