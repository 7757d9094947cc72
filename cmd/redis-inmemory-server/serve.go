package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	redisinmem "github.com/raniellyferreira/redis-inmemory-server"
	"github.com/raniellyferreira/redis-inmemory-server/lua"
	"github.com/raniellyferreira/redis-inmemory-server/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the snapshot and serve it over the Redis protocol",
		Long: `Load the snapshot from --dir/--dbfilename and serve it over the Redis protocol.
When the file does not exist a small built-in snapshot is loaded instead,
unless --require-snapshot is set.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	addSnapshotFlags(cmd)
	cmd.Flags().String("bind", "127.0.0.1", "address to listen on")
	cmd.Flags().Int("port", 6379, "TCP port to listen on")
	cmd.Flags().String("metrics-addr", "", "address of the Prometheus /metrics endpoint (empty disables it)")
	cmd.Flags().Duration("idle-timeout", 0, "close client connections idle for this long (0 disables)")
	cmd.Flags().Duration("script-timeout", lua.DefaultTimeout, "maximum run time of a Lua script")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadServeConfig(v)
	if err != nil {
		return err
	}

	hlog := newLogger(cfg.LogLevel)
	logger := redisinmem.NewHCLogger(hlog)

	opts := []redisinmem.Option{
		redisinmem.WithAddr(cfg.Addr()),
		redisinmem.WithDir(cfg.Dir),
		redisinmem.WithDBFilename(cfg.DBFilename),
		redisinmem.WithRequireSnapshot(cfg.RequireSnapshot),
		redisinmem.WithLengthByteOrder(cfg.LengthByteOrder),
		redisinmem.WithIdleTimeout(cfg.IdleTimeout),
		redisinmem.WithScriptTimeout(cfg.ScriptTimeout),
		redisinmem.WithLogger(logger),
	}

	var prom *metrics.Prometheus
	if cfg.MetricsAddr != "" {
		prom = metrics.NewPrometheus("")
		opts = append(opts, redisinmem.WithMetrics(prom))
	}

	inst, err := redisinmem.New(opts...)
	if err != nil {
		return err
	}
	defer func() { _ = inst.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if prom != nil {
		if err := prom.WatchKeys("", inst.Storage().Len); err != nil {
			return err
		}
		srv, _, err := metrics.StartHTTPServer(cfg.MetricsAddr, prom.Handler(), hlog.Named("metrics"))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.ShutdownHTTPServer(shutdownCtx, srv)
		}()
	}

	if err := inst.Start(ctx); err != nil {
		return err
	}
	hlog.Info("ready to accept connections", "addr", inst.Addr(), "version", redisinmem.Version)

	<-ctx.Done()
	hlog.Info("shutting down")
	return nil
}
