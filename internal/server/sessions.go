package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/photoedit/internal/history"
	"github.com/MeKo-Tech/photoedit/internal/session"
	"github.com/MeKo-Tech/photoedit/internal/store"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Sessions holds the live edit sessions and, when an archive is configured,
// saves every history change and restores archived sessions on first use.
type Sessions struct {
	opts    session.Options
	archive *store.Store
	logger  *slog.Logger
	live    map[string]*session.Controller
	mu      sync.Mutex

	// loadHook replaces archive.Load in tests.
	loadHook func(id string) (store.Session, error)

	created  atomic.Int64
	restored atomic.Int64
	saveErrs atomic.Int64
}

// SessionStatus summarizes the live sessions.
type SessionStatus struct {
	Live       int   `json:"live"`
	Loading    int   `json:"loading"`
	Created    int64 `json:"created"`
	Restored   int64 `json:"restored"`
	SaveErrors int64 `json:"save_errors"`
	Archived   bool  `json:"archived"`
}

// NewSessions creates a session registry. opts is the template for every
// new controller; its ID and OnHistory fields are set per session. archive
// may be nil.
func NewSessions(opts session.Options, archive *store.Store, logger *slog.Logger) *Sessions {
	return &Sessions{
		opts:    opts,
		archive: archive,
		logger:  logger,
		live:    make(map[string]*session.Controller),
	}
}

func (s *Sessions) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Sessions) newController(id string) *session.Controller {
	opts := s.opts
	opts.ID = id
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	if s.archive != nil {
		opts.OnHistory = s.save
	}
	return session.New(opts)
}

func (s *Sessions) save(id string, snapshots []history.Snapshot, cursor int) {
	if err := s.archive.Save(id, snapshots, cursor); err != nil {
		s.saveErrs.Add(1)
		s.log().Error("failed to archive session", "session", id, "error", err)
	}
}

// Create starts a new empty session.
func (s *Sessions) Create() *session.Controller {
	c := s.newController("")
	s.mu.Lock()
	s.live[c.ID()] = c
	s.mu.Unlock()
	s.created.Add(1)
	s.log().Debug("session created", "session", c.ID())
	return c
}

// Get returns a live session, restoring it from the archive if needed. The
// archive is read without holding the registry lock.
func (s *Sessions) Get(id string) (*session.Controller, error) {
	s.mu.Lock()
	c, ok := s.live[id]
	s.mu.Unlock()
	if ok {
		return c, nil
	}
	if s.archive == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	archived, err := s.load(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", id, err)
	}

	restored := s.newController(id)
	if err := restored.Restore(archived.Snapshots, archived.Cursor); err != nil {
		restored.Close()
		return nil, fmt.Errorf("failed to restore session %s: %w", id, err)
	}

	s.mu.Lock()
	if c, ok := s.live[id]; ok {
		s.mu.Unlock()
		restored.Close()
		return c, nil
	}
	s.live[id] = restored
	s.mu.Unlock()

	s.restored.Add(1)
	s.log().Info("session restored", "session", id, "snapshots", len(archived.Snapshots), "cursor", archived.Cursor)
	return restored, nil
}

func (s *Sessions) load(id string) (store.Session, error) {
	if s.loadHook != nil {
		return s.loadHook(id)
	}
	return s.archive.Load(id)
}

// Delete closes a session and removes it from the archive. Ids that are
// neither live nor archived return ErrSessionNotFound.
func (s *Sessions) Delete(id string) error {
	s.mu.Lock()
	c, ok := s.live[id]
	delete(s.live, id)
	s.mu.Unlock()

	if ok {
		c.Close()
	}
	if s.archive != nil {
		err := s.archive.Delete(id)
		switch {
		case errors.Is(err, store.ErrNotFound) && ok:
			// Live but never saved.
		case errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		case err != nil:
			return err
		}
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Close closes every live session. Archived sessions stay archived.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.live {
		c.Close()
		delete(s.live, id)
	}
}

// Status returns counters for the status endpoint.
func (s *Sessions) Status() SessionStatus {
	s.mu.Lock()
	live := make([]*session.Controller, 0, len(s.live))
	for _, c := range s.live {
		live = append(live, c)
	}
	s.mu.Unlock()

	st := SessionStatus{
		Live:       len(live),
		Created:    s.created.Load(),
		Restored:   s.restored.Load(),
		SaveErrors: s.saveErrs.Load(),
		Archived:   s.archive != nil,
	}
	for _, c := range live {
		if c.State().IsLoading {
			st.Loading++
		}
	}
	return st
}
