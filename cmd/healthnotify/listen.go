package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dukerupert/healthnotify/internal/history"
	"github.com/dukerupert/healthnotify/internal/inbox"
	"github.com/dukerupert/healthnotify/internal/logging"
	"github.com/dukerupert/healthnotify/internal/model"
	"github.com/dukerupert/healthnotify/internal/session"
	"github.com/dukerupert/healthnotify/internal/store"
	"github.com/dukerupert/healthnotify/internal/transport"
)

func newListenCmd(a *app) *cobra.Command {
	var asJSON, unreadOnly bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Seed from history and print live notifications until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListen(cmd, a, asJSON, unreadOnly)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print notifications as JSON lines")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "print only unread notifications after seeding")
	return cmd
}

func newSession(a *app, opts ...session.Option) *session.Session {
	cfg := a.cfg
	dialer := &transport.StompDialer{
		URL:       cfg.PushURL,
		Host:      cfg.StompHost,
		HeartBeat: cfg.HeartBeat,
		Logger:    a.logger,
	}
	base := []session.Option{
		session.WithLogger(a.logger),
		session.WithReconnectDelay(cfg.ReconnectDelay),
		session.WithMaxReconnectAttempts(cfg.MaxReconnectAttempts),
		session.WithClock(a.now),
	}
	return session.New(dialer, append(base, opts...)...)
}

func runListen(cmd *cobra.Command, a *app, asJSON, unreadOnly bool) error {
	ctx := cmd.Context()
	cfg := a.cfg
	logger := a.logger

	sess := newSession(a)
	st := store.NewNotificationStore(newClassifier(a))
	hist := history.NewClient(history.Config{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
		Timeout: cfg.HTTPTimeout,
		Logger:  logger,
	})
	svc := inbox.NewService(st, hist, sess, cfg.Destination, logger)

	var outMu sync.Mutex
	out := cmd.OutOrStdout()
	write := func(fn func(io.Writer) error) {
		outMu.Lock()
		defer outMu.Unlock()
		if err := fn(out); err != nil {
			logger.Warn("write output", logging.Err(err))
		}
	}

	st.OnChange(func(c store.Change) {
		if c.Kind != store.ChangeInserted && c.Kind != store.ChangeReplaced {
			return
		}
		for _, id := range c.IDs {
			if n, ok := st.Get(id); ok {
				write(func(w io.Writer) error { return writeNotification(w, n, asJSON) })
			}
		}
	})

	terminal := make(chan error, 1)
	sess.OnStatus(func(s session.Status) {
		logger.Debug("session status",
			slog.String("state", string(s.State)),
			slog.String("event", string(s.Event)),
			logging.Attempt(s.Attempt),
			logging.Err(s.Err),
		)
		if s.Event == session.EventExhausted || s.Event == session.EventUnauthorized {
			select {
			case terminal <- s.Err:
			default:
			}
		}
	})

	if err := sess.AddHandler(cfg.RestockDestination, "restock", session.Typed(func(u model.RestockUpdate) error {
		write(func(w io.Writer) error { return writeRestock(w, u, asJSON) })
		return nil
	})); err != nil {
		return err
	}

	if err := svc.Start(ctx); err != nil {
		if errors.Is(err, history.ErrUnauthorized) {
			return err
		}
		logger.Warn("history unavailable, showing live notifications only", logging.Err(err))
	}
	var preds []store.Predicate
	if unreadOnly {
		preds = append(preds, store.Unread())
	}
	for n := range st.Filter(preds...) {
		write(func(w io.Writer) error { return writeNotification(w, n, asJSON) })
	}
	logger.Info("inbox ready", slog.Int("notifications", st.Len()), slog.Int("unread", st.UnreadCount()))

	if err := sess.Connect(ctx, cfg.Token); err != nil {
		var cerr *session.ConnectError
		if errors.As(err, &cerr) && cerr.Kind == session.KindUnauthorized {
			return err
		}
		logger.Warn("initial connect failed, retrying", logging.Err(err))
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-terminal:
		runErr = fmt.Errorf("push session ended: %w", err)
	}

	svc.Stop()
	if err := sess.Disconnect(); err != nil {
		logger.Warn("disconnect", logging.Err(err))
	}
	return runErr
}
