package main

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/viper"
)

// serveConfig is the resolved configuration of the serve command
type serveConfig struct {
	Dir             string
	DBFilename      string
	RequireSnapshot bool
	LengthByteOrder binary.ByteOrder
	LogLevel        hclog.Level

	Bind          string
	Port          int
	MetricsAddr   string
	IdleTimeout   time.Duration
	ScriptTimeout time.Duration
}

// Addr returns the listen address
func (c *serveConfig) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// loadSnapshotConfig reads the flags shared by serve and dump
func loadSnapshotConfig(v *viper.Viper, c *serveConfig) error {
	c.Dir = v.GetString("dir")
	c.DBFilename = v.GetString("dbfilename")
	c.RequireSnapshot = v.GetBool("require-snapshot")

	if c.Dir == "" {
		return fmt.Errorf("dir must not be empty")
	}
	if c.DBFilename == "" {
		return fmt.Errorf("dbfilename must not be empty")
	}

	switch order := strings.ToLower(v.GetString("length-byte-order")); order {
	case "little", "le", "":
		c.LengthByteOrder = binary.LittleEndian
	case "big", "be":
		c.LengthByteOrder = binary.BigEndian
	default:
		return fmt.Errorf("invalid length-byte-order %q (expected little or big)", order)
	}

	level := v.GetString("log-level")
	c.LogLevel = hclog.LevelFromString(level)
	if c.LogLevel == hclog.NoLevel {
		return fmt.Errorf("invalid log-level %q", level)
	}
	return nil
}

// loadServeConfig resolves every serve flag from v
func loadServeConfig(v *viper.Viper) (*serveConfig, error) {
	c := &serveConfig{}
	if err := loadSnapshotConfig(v, c); err != nil {
		return nil, err
	}

	c.Bind = v.GetString("bind")
	c.Port = v.GetInt("port")
	c.MetricsAddr = v.GetString("metrics-addr")
	c.IdleTimeout = v.GetDuration("idle-timeout")
	c.ScriptTimeout = v.GetDuration("script-timeout")

	if c.Port < 0 || c.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", c.Port)
	}
	if c.IdleTimeout < 0 {
		return nil, fmt.Errorf("idle-timeout must not be negative")
	}
	if c.ScriptTimeout <= 0 {
		return nil, fmt.Errorf("script-timeout must be positive")
	}
	return c, nil
}

func newLogger(level hclog.Level) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "redis-inmemory-server",
		Level: level,
	})
}
