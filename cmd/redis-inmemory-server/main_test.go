package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/raniellyferreira/redis-inmemory-server/rdb"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestServeConfigDefaults(t *testing.T) {
	cmd := newServeCmd()
	v, err := newViper(cmd)
	if err != nil {
		t.Fatalf("newViper: %v", err)
	}
	cfg, err := loadServeConfig(v)
	if err != nil {
		t.Fatalf("loadServeConfig: %v", err)
	}

	if cfg.Addr() != "127.0.0.1:6379" {
		t.Errorf("Addr() = %q, want 127.0.0.1:6379", cfg.Addr())
	}
	if cfg.Dir != "/tmp/redis-data" || cfg.DBFilename != "rdbfile.rdb" {
		t.Errorf("snapshot = %s/%s", cfg.Dir, cfg.DBFilename)
	}
	if cfg.LengthByteOrder != binary.LittleEndian {
		t.Errorf("LengthByteOrder = %v, want little endian", cfg.LengthByteOrder)
	}
	if cfg.LogLevel != hclog.Info {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.ScriptTimeout != 5*time.Second {
		t.Errorf("ScriptTimeout = %v", cfg.ScriptTimeout)
	}
	if cfg.RequireSnapshot || cfg.MetricsAddr != "" || cfg.IdleTimeout != 0 {
		t.Errorf("unexpected optional settings: %+v", cfg)
	}
}

func TestServeConfigFromEnvironment(t *testing.T) {
	t.Setenv("REDIS_INMEM_PORT", "7000")
	t.Setenv("REDIS_INMEM_DBFILENAME", "dump.rdb")
	t.Setenv("REDIS_INMEM_REQUIRE_SNAPSHOT", "true")
	t.Setenv("REDIS_INMEM_LENGTH_BYTE_ORDER", "big")
	t.Setenv("REDIS_INMEM_IDLE_TIMEOUT", "30s")
	t.Setenv("REDIS_INMEM_LOG_LEVEL", "debug")

	cmd := newServeCmd()
	if err := cmd.Flags().Set("port", "7001"); err != nil {
		t.Fatal(err)
	}
	v, err := newViper(cmd)
	if err != nil {
		t.Fatalf("newViper: %v", err)
	}
	cfg, err := loadServeConfig(v)
	if err != nil {
		t.Fatalf("loadServeConfig: %v", err)
	}

	// an explicit flag beats the environment
	if cfg.Port != 7001 {
		t.Errorf("Port = %d, want 7001", cfg.Port)
	}
	if cfg.DBFilename != "dump.rdb" {
		t.Errorf("DBFilename = %q", cfg.DBFilename)
	}
	if !cfg.RequireSnapshot {
		t.Error("RequireSnapshot not read from environment")
	}
	if cfg.LengthByteOrder != binary.BigEndian {
		t.Errorf("LengthByteOrder = %v, want big endian", cfg.LengthByteOrder)
	}
	if cfg.IdleTimeout != 30*time.Second {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if cfg.LogLevel != hclog.Debug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestServeConfigInvalid(t *testing.T) {
	tests := []struct {
		flag, value, want string
	}{
		{"length-byte-order", "middle", "length-byte-order"},
		{"log-level", "loud", "log-level"},
		{"port", "70000", "invalid port"},
		{"script-timeout", "0s", "script-timeout"},
		{"idle-timeout", "-1s", "idle-timeout"},
		{"dbfilename", "", "dbfilename"},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			cmd := newServeCmd()
			if err := cmd.Flags().Set(tt.flag, tt.value); err != nil {
				t.Fatal(err)
			}
			v, err := newViper(cmd)
			if err != nil {
				t.Fatal(err)
			}
			_, err = loadServeConfig(v)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("loadServeConfig error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestDumpBuiltin(t *testing.T) {
	out, err := runRoot(t, "dump", "--builtin", "--log-level", "error")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out, "source=builtin") || !strings.Contains(out, "keys=1") {
		t.Errorf("missing stats line:\n%s", out)
	}
	if !strings.Contains(out, `"banana"`) || !strings.Contains(out, "mango") || !strings.Contains(out, "string") {
		t.Errorf("missing banana row:\n%s", out)
	}
}

func TestDumpFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dump.rdb"), rdb.FallbackPayload(), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runRoot(t, "dump", "--dir", dir, "--dbfilename", "dump.rdb", "--require-snapshot", "--log-level", "error")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out, "source="+filepath.Join(dir, "dump.rdb")) {
		t.Errorf("source not reported:\n%s", out)
	}

	out, err = runRoot(t, "dump", "--dir", dir, "--dbfilename", "dump.rdb", "--match", "zzz*", "--log-level", "error")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if strings.Contains(out, "banana") {
		t.Errorf("--match did not filter:\n%s", out)
	}
}

func TestDumpRequiredSnapshotMissing(t *testing.T) {
	_, err := runRoot(t, "dump", "--dir", t.TempDir(), "--require-snapshot", "--log-level", "error")
	if !errors.Is(err, rdb.ErrSnapshotMissing) {
		t.Fatalf("error = %v, want ErrSnapshotMissing", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "version: ") {
		t.Errorf("unexpected output %q", out)
	}
}
