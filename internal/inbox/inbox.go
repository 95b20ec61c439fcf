// Package inbox wires the notification pipeline together: history seeding,
// the live push handler and read-state updates confirmed against the server.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/healthnotify/internal/logging"
	"github.com/dukerupert/healthnotify/internal/model"
	"github.com/dukerupert/healthnotify/internal/session"
	"github.com/dukerupert/healthnotify/internal/store"
)

// HandlerName is the name the live handler registers under.
const HandlerName = "inbox"

var ErrUnknownNotification = errors.New("inbox: unknown notification")

// History is the REST collaborator.
type History interface {
	List(ctx context.Context) ([]model.RawNotification, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
}

// Registrar is the part of a session the inbox needs.
type Registrar interface {
	AddHandler(destination, name string, fn session.Handler) error
	RemoveHandler(destination, name string) bool
}

type Service struct {
	store       *store.NotificationStore
	history     History
	sessions    Registrar
	destination string
	logger      *slog.Logger
}

func NewService(st *store.NotificationStore, history History, sessions Registrar, destination string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		history:     history,
		sessions:    sessions,
		destination: destination,
		logger:      logger.With(logging.Component("inbox")),
	}
}

// Start registers the live handler and then seeds the store from history.
// The handler goes first so nothing pushed during the fetch is lost. A seed
// failure is returned but leaves the live handler in place.
func (s *Service) Start(ctx context.Context) error {
	if err := s.sessions.AddHandler(s.destination, HandlerName, session.Typed(s.ingest)); err != nil {
		return fmt.Errorf("register inbox handler: %w", err)
	}
	return s.Refresh(ctx)
}

// Refresh re-seeds the store from the history endpoint.
func (s *Service) Refresh(ctx context.Context) error {
	raws, err := s.history.List(ctx)
	if err != nil {
		return fmt.Errorf("seed notifications: %w", err)
	}
	s.store.Seed(raws)
	s.logger.Info("notifications seeded", slog.Int("count", len(raws)))
	return nil
}

// Stop removes the live handler.
func (s *Service) Stop() {
	s.sessions.RemoveHandler(s.destination, HandlerName)
}

func (s *Service) ingest(raw model.RawNotification) error {
	n := s.store.IngestLive(raw)
	s.logger.Debug("notification received",
		logging.NotificationID(n.ID),
		slog.String("type", string(n.Type)),
		slog.String("priority", string(n.Priority)),
	)
	return nil
}

// MarkRead marks id read locally, confirms with the server and reverts the
// local change if the server call fails.
func (s *Service) MarkRead(ctx context.Context, id int64) error {
	prev, ok := s.store.MarkRead(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNotification, id)
	}
	if prev {
		return nil
	}
	if err := s.history.MarkRead(ctx, id); err != nil {
		s.store.SetRead(id, prev)
		s.logger.Warn("mark read reverted", logging.NotificationID(id), logging.Err(err))
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every unread notification read, reverting all of them if
// the server call fails.
func (s *Service) MarkAllRead(ctx context.Context) error {
	ids := s.store.MarkAllRead()
	if len(ids) == 0 {
		return nil
	}
	if err := s.history.MarkAllRead(ctx); err != nil {
		for _, id := range ids {
			s.store.SetRead(id, false)
		}
		s.logger.Warn("mark all read reverted", slog.Int("count", len(ids)), logging.Err(err))
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
