// Package cli wires the application configuration into an engine for the
// ddialog commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/aretw0/ddialog"
	"github.com/aretw0/ddialog/internal/config"
	"github.com/aretw0/ddialog/pkg/adapters/file"
	"github.com/aretw0/ddialog/pkg/adapters/luis"
	"github.com/aretw0/ddialog/pkg/adapters/memory"
	"github.com/aretw0/ddialog/pkg/adapters/redis"
	"github.com/aretw0/ddialog/pkg/adapters/sql"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/observability"
	"github.com/aretw0/ddialog/pkg/persistence/middleware"
	"github.com/aretw0/ddialog/pkg/ports"
	"github.com/aretw0/ddialog/pkg/session"
	"github.com/aretw0/ddialog/pkg/telemetry"
)

// Runtime is an engine plus the resources it owns.
type Runtime struct {
	Engine  *ddialog.Engine
	Metrics *observability.Metrics
	Store   ports.ProgressStore
	// Masker hides configured values in operator views; nil when unset.
	Masker *middleware.Masker

	closers []io.Closer
}

// Close releases store connections.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Storage is an opened progress store with its optional lock.
type Storage struct {
	Store  ports.ProgressStore
	Locker ports.DistributedLocker
	Closer io.Closer
}

// OpenStore builds the configured store, wrapped with the encryption
// middleware when a key is set. Masking is never applied here: this is the
// store the engine resumes from.
func OpenStore(cfg config.StoreConfig, logger *slog.Logger) (*Storage, error) {
	st := &Storage{}

	switch cfg.Driver {
	case "memory":
		st.Store = memory.NewStore()
	case "file":
		st.Store = file.New(cfg.Path)
	case "redis":
		rs := redis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		st.Store, st.Closer = rs, rs
		if cfg.Redis.Lock {
			st.Locker = redis.NewLocker(rs.Client(), cfg.Redis.Prefix)
		}
	case "sql":
		ss, err := sql.Open(cfg.SQL.Dialect, cfg.SQL.DSN)
		if err != nil {
			return nil, err
		}
		st.Store, st.Closer = ss, ss
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	var mws []middleware.Middleware
	active, fallback, err := cfg.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	st.Store = middleware.Chain(st.Store, mws...)

	logger.Debug("Progress store opened", "driver", cfg.Driver, "encrypted", active != nil, "locked", st.Locker != nil)
	return st, nil
}

// BuildRecognizers creates one recognizer per configured model.
func BuildRecognizers(cfgs []config.RecognizerConfig) (map[string]ports.Recognizer, error) {
	out := make(map[string]ports.Recognizer, len(cfgs))
	for _, c := range cfgs {
		switch c.Kind {
		case "luis":
			r, err := luis.New(*c.LUIS)
			if err != nil {
				return nil, fmt.Errorf("recognizer %q: %w", c.Model, err)
			}
			out[c.Model] = r
		case "keyword":
			var opts []memory.RecognizerOption
			for intent, words := range c.Intents {
				opts = append(opts, memory.WithIntent(intent, words...))
			}
			for entity, pattern := range c.Entities {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return nil, fmt.Errorf("recognizer %q: entity %q: %w", c.Model, entity, err)
				}
				opts = append(opts, memory.WithEntity(entity, re))
			}
			out[c.Model] = memory.NewRecognizer(opts...)
		default:
			return nil, fmt.Errorf("recognizer %q: unknown kind %q", c.Model, c.Kind)
		}
	}
	return out, nil
}

// NewRuntime initializes an engine with standard CLI conventions.
func NewRuntime(cfg *config.Config, logger *slog.Logger, debug bool) (*Runtime, error) {
	runMode, err := domain.ParseRunMode(cfg.RunMode)
	if err != nil {
		return nil, err
	}

	recognizers, err := BuildRecognizers(cfg.Recognizers)
	if err != nil {
		return nil, err
	}

	storage, err := OpenStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Store: storage.Store}
	if storage.Closer != nil {
		rt.closers = append(rt.closers, storage.Closer)
	}
	if len(cfg.Store.MaskedPatterns) > 0 {
		if rt.Masker, err = middleware.NewMasker(cfg.Store.MaskedPatterns); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	opts := []ddialog.Option{
		ddialog.WithLogger(logger),
		ddialog.WithStore(storage.Store),
		ddialog.WithRunMode(runMode),
		ddialog.WithDefaultDialog(cfg.DefaultDialog),
		ddialog.WithDefaultLocale(cfg.Locale),
		ddialog.WithWelcomeText(cfg.Welcome),
		ddialog.WithCompletionPolicy(ddialog.CompletionPolicy(cfg.Completion)),
		ddialog.WithConfirmationPrompt(cfg.Confirmation),
		ddialog.WithStrictTelemetry(cfg.Telemetry.Strict),
		ddialog.WithRedaction(cfg.Telemetry.Redact...),
		ddialog.WithCompletionHandler(logCompletion(logger)),
	}
	if storage.Locker != nil {
		opts = append(opts, ddialog.WithLocker(storage.Locker))
	}
	for model, r := range recognizers {
		if model == cfg.Dispatch {
			opts = append(opts, ddialog.WithDispatchRecognizer(r))
		}
		opts = append(opts, ddialog.WithRecognizer(model, r))
	}
	if cfg.Telemetry.Log {
		opts = append(opts, ddialog.WithTelemetrySinks(telemetry.NewLogSink(logger)))
	}
	if cfg.Telemetry.Metrics {
		rt.Metrics = observability.NewMetrics()
		opts = append(opts, ddialog.WithMetrics(rt.Metrics))
	}
	if debug {
		opts = append(opts, ddialog.WithLifecycleHooks(createDebugHooks(logger)))
	}

	engine, err := ddialog.New(cfg.Dialogs, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	rt.Engine = engine
	return rt, nil
}

// OpenSessions opens the store behind a session manager without loading
// any definitions, for operator commands. Configured patterns are masked on
// every read and the view refuses writes.
func OpenSessions(cfg config.StoreConfig, logger *slog.Logger) (*session.Manager, io.Closer, error) {
	storage, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.MaskedPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.MaskedPatterns)
		if err != nil {
			if storage.Closer != nil {
				_ = storage.Closer.Close()
			}
			return nil, nil, err
		}
		storage.Store = pii(storage.Store)
	}
	var opts []session.Option
	if storage.Locker != nil {
		opts = append(opts, session.WithLocker(storage.Locker))
	}
	opts = append(opts, session.WithLogger(logger))
	closer := storage.Closer
	if closer == nil {
		closer = nopCloser{}
	}
	return session.NewManager(storage.Store, opts...), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
