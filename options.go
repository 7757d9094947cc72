package redisinmem

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/lua"
)

// config holds the configuration for an Instance
type config struct {
	// Listener settings
	addr        string
	idleTimeout time.Duration

	// Snapshot location
	dir             string
	dbFilename      string
	requireSnapshot bool
	lengthOrder     binary.ByteOrder

	// Scripting
	scriptTimeout time.Duration

	// Observability
	logger  Logger
	metrics MetricsCollector
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		addr:          "127.0.0.1:6379",
		dir:           "/tmp/redis-data",
		dbFilename:    "rdbfile.rdb",
		scriptTimeout: lua.DefaultTimeout,
		logger:        NewHCLogger(nil),
	}
}

// Option represents a configuration option for an Instance
type Option func(*config) error

// WithAddr sets the TCP address the server listens on
//
// Example:
//
//	WithAddr("127.0.0.1:6379")
//	WithAddr(":0") // random port, see Instance.Addr
func WithAddr(addr string) Option {
	return func(c *config) error {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: address %q: %v", ErrInvalidConfig, addr, err)
		}
		c.addr = addr
		return nil
	}
}

// WithDir sets the directory holding the snapshot file
func WithDir(dir string) Option {
	return func(c *config) error {
		if dir == "" {
			return fmt.Errorf("%w: empty snapshot directory", ErrInvalidConfig)
		}
		c.dir = dir
		return nil
	}
}

// WithDBFilename sets the snapshot file name
func WithDBFilename(name string) Option {
	return func(c *config) error {
		if name == "" {
			return fmt.Errorf("%w: empty snapshot file name", ErrInvalidConfig)
		}
		c.dbFilename = name
		return nil
	}
}

// WithRequireSnapshot makes a missing snapshot file a startup error instead
// of loading the built-in payload.
func WithRequireSnapshot(require bool) Option {
	return func(c *config) error {
		c.requireSnapshot = require
		return nil
	}
}

// WithLengthByteOrder sets the byte order of 32 and 64-bit length fields in
// the snapshot. Little endian is the default.
func WithLengthByteOrder(order binary.ByteOrder) Option {
	return func(c *config) error {
		if order == nil {
			return fmt.Errorf("%w: nil byte order", ErrInvalidConfig)
		}
		c.lengthOrder = order
		return nil
	}
}

// WithIdleTimeout closes client connections idle for longer than timeout.
// Zero, the default, keeps idle connections open.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return fmt.Errorf("%w: negative idle timeout", ErrInvalidConfig)
		}
		c.idleTimeout = timeout
		return nil
	}
}

// WithScriptTimeout bounds the run time of a single Lua script
//
// Example:
//
//	WithScriptTimeout(2 * time.Second)
func WithScriptTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: script timeout must be positive", ErrInvalidConfig)
		}
		c.scriptTimeout = timeout
		return nil
	}
}

// WithLogger sets a custom logger
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
//
// Example:
//
//	WithMetrics(metrics.NewPrometheus(""))
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}
