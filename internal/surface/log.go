// Package surface provides notify.Surface implementations that render
// popups outside a desktop window manager.
package surface

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-sms-notifier/internal/notify"
)

// Log renders popups as structured log lines. It is the default surface
// for headless runs.
type Log struct {
	log zerolog.Logger

	mu    sync.Mutex
	live  map[notify.Handle]notify.Rect
	count int
}

// NewLog returns a Log surface writing to l.
func NewLog(l zerolog.Logger) *Log {
	return &Log{
		log:  l.With().Str("component", "surface").Logger(),
		live: make(map[notify.Handle]notify.Rect),
	}
}

func (s *Log) Create(geom notify.Rect, p notify.Payload) (notify.Handle, error) {
	s.mu.Lock()
	s.count++
	h := notify.Handle(fmt.Sprintf("log-%d", s.count))
	s.live[h] = geom
	s.mu.Unlock()

	s.log.Info().
		Str("handle", string(h)).
		Str("slot", p.SlotID).
		Str("bank", string(p.Bank)).
		Str("amount", p.Amount).
		Str("balance", p.Balance).
		Bool("newest", p.Newest).
		Int("x", geom.X).
		Int("y", geom.Y).
		Msg(p.Summary())
	return h, nil
}

func (s *Log) UpdateGeometry(h notify.Handle, geom notify.Rect) error {
	s.mu.Lock()
	_, ok := s.live[h]
	if ok {
		s.live[h] = geom
	}
	s.mu.Unlock()
	if !ok {
		return notify.ErrSurfaceDestroyed
	}

	s.log.Debug().Str("handle", string(h)).Int("x", geom.X).Int("y", geom.Y).Msg("popup moved")
	return nil
}

func (s *Log) SendPayload(h notify.Handle, p notify.Payload) error {
	if s.IsDestroyed(h) {
		return notify.ErrSurfaceDestroyed
	}
	s.log.Debug().Str("handle", string(h)).Bool("newest", p.Newest).Msg("popup updated")
	return nil
}

func (s *Log) Destroy(h notify.Handle) error {
	s.mu.Lock()
	_, ok := s.live[h]
	delete(s.live, h)
	s.mu.Unlock()
	if !ok {
		return notify.ErrSurfaceDestroyed
	}

	s.log.Debug().Str("handle", string(h)).Msg("popup closed")
	return nil
}

func (s *Log) IsDestroyed(h notify.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[h]
	return !ok
}

// Live returns the number of open popups.
func (s *Log) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}
