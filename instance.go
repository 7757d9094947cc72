package redisinmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/raniellyferreira/redis-inmemory-server/command"
	"github.com/raniellyferreira/redis-inmemory-server/lua"
	"github.com/raniellyferreira/redis-inmemory-server/rdb"
	"github.com/raniellyferreira/redis-inmemory-server/server"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// Instance is an embeddable in-memory Redis-compatible server
type Instance struct {
	// Configuration
	config *config

	// Components
	store      *storage.Store
	dispatcher *command.Dispatcher
	server     *server.Server

	// State
	mu       sync.RWMutex
	started  bool
	closed   bool
	snapshot *rdb.LoadStats
}

// New creates a new Instance with the given options
//
// The instance is created but not started. Use Start() to load the snapshot
// and begin accepting connections.
//
// Example:
//
//	inst, err := redisinmem.New(
//		redisinmem.WithAddr("127.0.0.1:6379"),
//		redisinmem.WithDir("/var/lib/redis"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
func New(opts ...Option) (*Instance, error) {
	cfg := defaultConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := &loggerAdapter{logger: cfg.logger}

	store := storage.New()
	dispatcher := command.New(store,
		command.WithConfig(command.StaticConfig{Dir: cfg.dir, DBFilename: cfg.dbFilename}),
		command.WithScripts(lua.NewEngine(lua.WithTimeout(cfg.scriptTimeout))),
		command.WithLogger(logger),
	)

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithIdleTimeout(cfg.idleTimeout),
	}
	if cfg.metrics != nil {
		serverOpts = append(serverOpts, server.WithMetrics(cfg.metrics))
	}

	return &Instance{
		config:     cfg,
		store:      store,
		dispatcher: dispatcher,
		server:     server.NewServer(cfg.addr, dispatcher, serverOpts...),
	}, nil
}

// Start loads the snapshot and then binds the listener. Any failure in
// either phase is returned as a *StartupError and nothing is served.
//
// Example:
//
//	if err := inst.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
func (i *Instance) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}
	if i.started {
		return nil // Already started
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	loadOpts := []rdb.ParserOption{rdb.WithLogger(&loggerAdapter{logger: i.config.logger})}
	if i.config.lengthOrder != nil {
		loadOpts = append(loadOpts, rdb.WithLengthByteOrder(i.config.lengthOrder))
	}
	stats, err := rdb.LoadFile(i.config.dir, i.config.dbFilename, i.store, i.config.requireSnapshot, loadOpts...)
	if err != nil {
		i.config.logger.Error("Failed to load snapshot", Field{Key: "error", Value: err})
		if i.config.metrics != nil {
			i.config.metrics.RecordError("snapshot")
		}
		return &StartupError{Phase: "snapshot", Err: fmt.Errorf("%w: %w", ErrSnapshotLoad, err)}
	}
	i.snapshot = stats
	i.config.logger.Info("Snapshot loaded",
		Field{Key: "source", Value: stats.Source},
		Field{Key: "version", Value: stats.Version},
		Field{Key: "keys", Value: stats.Keys},
		Field{Key: "expired", Value: stats.Expired},
		Field{Key: "skipped", Value: stats.Skipped},
		Field{Key: "duration", Value: stats.Duration},
	)
	if i.config.metrics != nil {
		i.config.metrics.RecordSnapshotLoad(stats.Keys, stats.Duration)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := i.server.Start(); err != nil {
		i.config.logger.Error("Failed to start server", Field{Key: "error", Value: err}, Field{Key: "addr", Value: i.config.addr})
		return &StartupError{Phase: "listen", Err: err}
	}

	i.started = true
	return nil
}

// Close stops the server and disconnects every client. It is safe to call
// more than once.
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	if err := i.server.Stop(); err != nil {
		i.config.logger.Error("Error stopping server", Field{Key: "error", Value: err})
		return err
	}
	return nil
}

// Addr returns the address the server is bound to
func (i *Instance) Addr() string {
	return i.server.Addr()
}

// Storage returns the underlying store for direct access
//
// Example:
//
//	value, exists := inst.Storage().Get("banana")
func (i *Instance) Storage() *storage.Store {
	return i.store
}

// Dispatcher returns the command dispatcher, which can evaluate commands
// in-process without a network round trip.
func (i *Instance) Dispatcher() *command.Dispatcher {
	return i.dispatcher
}

// Snapshot returns the statistics of the startup load, or nil before Start
func (i *Instance) Snapshot() *rdb.LoadStats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.snapshot
}

// Info returns detailed information about the instance
func (i *Instance) Info() map[string]interface{} {
	st := i.store.Stats()
	info := map[string]interface{}{
		"keys":           st.Keys,
		"expired_evicts": st.ExpiredEvicts,
		"server":         i.server.Stats(),
		"version":        VersionInfo(),
	}

	if snap := i.Snapshot(); snap != nil {
		info["snapshot"] = map[string]interface{}{
			"source":  snap.Source,
			"version": snap.Version,
			"keys":    snap.Keys,
			"expired": snap.Expired,
			"skipped": snap.Skipped,
		}
	}
	return info
}
