package cli

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/ceiling/internal/engine"
	"github.com/roach88/ceiling/internal/metrics"
	"github.com/roach88/ceiling/internal/store"
)

// session is an open database with an engine over it, for the life of one
// command.
type session struct {
	opts     *RootOptions
	path     string
	store    *store.Store
	engine   *engine.Engine
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

// openSession resolves the database path, opens the store and builds the
// engine. Extra options are applied after the defaults.
func openSession(opts *RootOptions, extra ...engine.EngineOption) (*session, error) {
	path := opts.Database
	if path == "" {
		p, err := store.DefaultPath()
		if err != nil {
			return nil, ioError("failed to resolve database path", err)
		}
		path = p
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, ioError("failed to open database", err)
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	engineOpts := []engine.EngineOption{
		engine.WithLogger(opts.log()),
		engine.WithMetrics(m),
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDs))
	}
	engineOpts = append(engineOpts, extra...)

	opts.log().Debug("database ready", "path", path)
	return &session{
		opts:     opts,
		path:     path,
		store:    st,
		engine:   engine.New(st, engineOpts...),
		metrics:  m,
		registry: registry,
	}, nil
}

// Close writes the metrics textfile, if requested, and closes the store.
func (s *session) Close() error {
	var errs []error
	if s.opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(s.opts.MetricsFile, s.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics file: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

// withSession opens a session, runs fn and closes the session. Errors not
// yet reported by fn are written through out. A close failure is logged;
// it does not replace fn's result.
func withSession(opts *RootOptions, out *OutputFormatter, fn func(s *session) error, extra ...engine.EngineOption) error {
	s, err := openSession(opts, extra...)
	if err != nil {
		return out.Fail(err)
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			opts.log().Error("error closing session", "error", closeErr)
		}
	}()

	if err := fn(s); err != nil {
		if IsReported(err) {
			return err
		}
		return out.Fail(err)
	}
	return nil
}
