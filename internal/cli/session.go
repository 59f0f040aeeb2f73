package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/store"
	"github.com/roach88/quorum/internal/treasury"
)

// session is one command's view of the system: the event log, and an
// engine plus treasury rebuilt from it. New events flow through the bus to
// the log and the treasury; close flushes them.
//
// A session holds the database write lock from the moment it reads the log
// until close, so sessions on one database run one at a time and each one
// sees every event committed before it.
type session struct {
	store    *store.Store
	tx       *store.Tx
	engine   *engine.Engine
	treasury *treasury.Treasury
	bus      *engine.Bus
	logger   *slog.Logger
	database string
	log      []engine.Event // the event log as read when the session opened

	persistErr error // first failed append, reported by close
}

// newLogger configures slog the way every command logs: text on stderr,
// warnings only unless --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// resolveConfig loads --config (or the environment alone) and applies --db.
func resolveConfig(opts *RootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.Config != "" {
		cfg, err = config.Load(opts.Config)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// openStore opens the configured event log.
func openStore(opts *RootOptions) (*store.Store, *config.Config, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, cfg, nil
}

// openSession locks the event log and replays it into a fresh engine.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())

	st, cfg, err := openStore(opts)
	if err != nil {
		return nil, err
	}

	tx, err := st.Begin(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to lock database", err)
	}
	abort := func() {
		tx.Rollback()
		st.Close()
	}

	registry, err := tx.LoadRegistry(ctx)
	if errors.Is(err, store.ErrNoRegistry) {
		abort()
		return nil, WrapExitError(ExitCommandError,
			fmt.Sprintf("database %s is not initialised", cfg.Database), err)
	}
	if err != nil {
		abort()
		return nil, WrapExitError(ExitCommandError, "failed to load registry", err)
	}

	events, err := tx.ReadEvents(ctx)
	if err != nil {
		abort()
		return nil, WrapExitError(ExitCommandError, "failed to read event log", err)
	}

	tr := treasury.New(logger)
	if err := tr.Restore(events); err != nil {
		abort()
		return nil, WrapExitError(ExitFailure, "event log is inconsistent", err)
	}

	s := &session{
		store:    st,
		tx:       tx,
		treasury: tr,
		logger:   logger,
		database: cfg.Database,
		log:      events,
	}
	s.bus = engine.NewBus(logger, engine.SinkFunc(s.persist), tr)
	s.engine = engine.New(registry, tr,
		engine.WithEmitter(s.bus),
		engine.WithLogger(logger),
	)
	if err := s.engine.Replay(events); err != nil {
		abort()
		return nil, WrapExitError(ExitFailure, "event log is inconsistent", err)
	}

	logger.Debug("session opened",
		"db", cfg.Database,
		"events", len(events),
		"actions", s.engine.ActionCount(),
		"seq", s.engine.Clock().Current(),
	)
	return s, nil
}

// persist appends ev to the log. The bus only logs sink errors, so the
// first one is kept for close.
func (s *session) persist(ctx context.Context, ev engine.Event) error {
	err := s.tx.AppendEvent(ctx, ev)
	if err != nil && s.persistErr == nil {
		s.persistErr = err
	}
	return err
}

// close delivers pending events to the log and commits them, or rolls the
// whole session back if any event could not be stored. Either way the
// write lock is released and the database closed.
func (s *session) close(ctx context.Context) error {
	err := s.bus.Flush(ctx)
	if err == nil {
		err = s.persistErr
	}
	if err == nil {
		var last int64
		last, err = s.tx.LastSeq(ctx)
		if err == nil && last != s.engine.Clock().Current() {
			err = fmt.Errorf("event log ends at seq %d, engine at %d", last, s.engine.Clock().Current())
		}
	}
	if err == nil {
		err = s.tx.Commit()
	} else if rbErr := s.tx.Rollback(); rbErr != nil {
		s.logger.Error("error rolling back session", "error", rbErr)
	}

	if closeErr := s.store.Close(); closeErr != nil {
		s.logger.Error("error closing database", "error", closeErr)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to persist events", err)
	}
	return nil
}

// withSession runs fn against an open session and always closes it.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}

	runErr := fn(ctx, s)
	if closeErr := s.close(ctx); closeErr != nil && runErr == nil {
		return closeErr
	}
	return runErr
}
