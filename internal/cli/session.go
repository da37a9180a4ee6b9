package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/orbitsplat/internal/engine"
	"github.com/roach88/orbitsplat/internal/nodes"
	"github.com/roach88/orbitsplat/internal/store"
	"github.com/roach88/orbitsplat/internal/trainer"
)

// session is a running engine configured from the global flags. Commands
// execute nodes through it so every execution is serialized on one device
// and, with --db, recorded as a run.
type session struct {
	ctx      context.Context
	registry *nodes.Registry
	engine   *engine.Engine
	store    *store.Store
	logger   *slog.Logger
	opts     *RootOptions

	cancel context.CancelFunc
	done   chan error
	sigs   chan os.Signal
}

// openSession opens the run store (when --db is set) and starts the engine
// loop. The caller must close the session.
func openSession(cmd *cobra.Command, opts *RootOptions, trainerOpts ...trainer.Option) (*session, error) {
	logger := slog.Default()

	var st *store.Store
	if opts.Database != "" {
		logger.Debug("opening database", "path", opts.Database)
		var err error
		if st, err = store.Open(opts.Database); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
	}

	registry := nodes.Default()
	engOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithEnv(nodes.Env{Dirs: opts.dirs(), Logger: logger, Now: opts.Now, TrainerOptions: trainerOpts}),
	}
	if st != nil {
		engOpts = append(engOpts, engine.WithStore(st))
	}
	if opts.IDGenerator != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	if opts.Now != nil {
		engOpts = append(engOpts, engine.WithNow(opts.Now))
	}
	eng, err := engine.New(registry, engOpts...)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &session{
		ctx:      ctx,
		registry: registry,
		engine:   eng,
		store:    st,
		logger:   logger,
		opts:     opts,
		cancel:   cancel,
		done:     make(chan error, 1),
		sigs:     make(chan os.Signal, 1),
	}

	signal.Notify(s.sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-s.sigs:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() { s.done <- eng.Run(ctx) }()

	return s, nil
}

// execute runs one node and waits for its outputs.
func (s *session) execute(node string, in nodes.Values, observer trainer.Observer) (nodes.Values, error) {
	res, err := s.engine.Execute(s.ctx, engine.Job{Node: node, Inputs: in, Observer: observer})
	if err != nil {
		return nil, err
	}
	return res.Outputs, nil
}

func (s *session) now() time.Time {
	if s.opts.Now != nil {
		return s.opts.Now()
	}
	return time.Now()
}

// close drains the engine, stops signal handling and closes the store.
func (s *session) close() error {
	s.engine.Stop()
	runErr := <-s.done
	s.cancel()
	signal.Stop(s.sigs)

	var closeErr error
	if s.store != nil {
		closeErr = s.store.Close()
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return closeErr
}
