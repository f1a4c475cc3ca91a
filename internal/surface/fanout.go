package surface

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-sms-notifier/internal/notify"
)

// Fanout presents every popup on several surfaces at once. A popup exists
// as long as at least one member managed to create it.
type Fanout struct {
	members []notify.Surface
	log     zerolog.Logger

	mu      sync.Mutex
	count   int
	handles map[notify.Handle][]memberHandle
}

type memberHandle struct {
	surface notify.Surface
	handle  notify.Handle
}

// NewFanout combines members into one surface.
func NewFanout(l zerolog.Logger, members ...notify.Surface) *Fanout {
	return &Fanout{
		members: members,
		log:     l.With().Str("component", "fanout").Logger(),
		handles: make(map[notify.Handle][]memberHandle),
	}
}

func (f *Fanout) Create(geom notify.Rect, p notify.Payload) (notify.Handle, error) {
	var (
		created []memberHandle
		errs    []error
	)
	for _, m := range f.members {
		h, err := m.Create(geom, p)
		if err != nil {
			f.log.Warn().Err(err).Str("slot", p.SlotID).Msg("member failed to create popup")
			errs = append(errs, err)
			continue
		}
		created = append(created, memberHandle{surface: m, handle: h})
	}
	if len(created) == 0 {
		if len(errs) == 0 {
			return "", errors.New("fanout has no surfaces")
		}
		return "", errors.Join(errs...)
	}

	f.mu.Lock()
	f.count++
	h := notify.Handle(fmt.Sprintf("fan-%d", f.count))
	f.handles[h] = created
	f.mu.Unlock()
	return h, nil
}

func (f *Fanout) UpdateGeometry(h notify.Handle, geom notify.Rect) error {
	return f.each(h, func(mh memberHandle) error {
		return mh.surface.UpdateGeometry(mh.handle, geom)
	})
}

func (f *Fanout) SendPayload(h notify.Handle, p notify.Payload) error {
	return f.each(h, func(mh memberHandle) error {
		return mh.surface.SendPayload(mh.handle, p)
	})
}

func (f *Fanout) Destroy(h notify.Handle) error {
	f.mu.Lock()
	members, ok := f.handles[h]
	delete(f.handles, h)
	f.mu.Unlock()
	if !ok {
		return notify.ErrSurfaceDestroyed
	}

	var errs []error
	for _, mh := range members {
		if mh.surface.IsDestroyed(mh.handle) {
			continue
		}
		if err := mh.surface.Destroy(mh.handle); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) IsDestroyed(h notify.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handles[h]
	return !ok
}

func (f *Fanout) each(h notify.Handle, fn func(memberHandle) error) error {
	f.mu.Lock()
	members, ok := f.handles[h]
	f.mu.Unlock()
	if !ok {
		return notify.ErrSurfaceDestroyed
	}

	var errs []error
	for _, mh := range members {
		if err := fn(mh); err != nil && !errors.Is(err, notify.ErrSurfaceDestroyed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
