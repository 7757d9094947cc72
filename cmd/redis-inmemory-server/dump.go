package main

import (
	"bytes"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/raniellyferreira/redis-inmemory-server/rdb"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Decode a snapshot and print its keys",
		Long: `Decode the snapshot at --dir/--dbfilename, or the built-in payload with
--builtin, and print every live key with its type, TTL and value.`,
		Args: cobra.NoArgs,
		RunE: runDump,
	}

	addSnapshotFlags(cmd)
	cmd.Flags().Bool("builtin", false, "dump the built-in snapshot instead of a file")
	cmd.Flags().String("match", "*", "only print keys matching this glob pattern")
	return cmd
}

func runDump(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg := &serveConfig{}
	if err := loadSnapshotConfig(v, cfg); err != nil {
		return err
	}

	hlog := newLogger(cfg.LogLevel)
	opts := []rdb.ParserOption{
		rdb.WithLogger(hlog.Named("rdb")),
		rdb.WithLengthByteOrder(cfg.LengthByteOrder),
	}

	store := storage.New()
	var stats *rdb.LoadStats
	if v.GetBool("builtin") {
		stats, err = rdb.Load(bytes.NewReader(rdb.FallbackPayload()), store, opts...)
		if stats != nil {
			stats.Source = "builtin"
		}
	} else {
		stats, err = rdb.LoadFile(cfg.Dir, cfg.DBFilename, store, cfg.RequireSnapshot, opts...)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# source=%s version=%d keys=%d expired=%d skipped=%d other_dbs=%d bytes=%d\n",
		stats.Source, stats.Version, stats.Keys, stats.Expired, stats.Skipped, stats.OtherDBs, stats.FromBytes)
	return printKeys(out, store, v.GetString("match"))
}

// printKeys writes one tab-aligned line per key: name, type, ttl, value
func printKeys(out io.Writer, store *storage.Store, pattern string) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	err := store.Exec(func(tx *storage.Tx) error {
		for _, key := range tx.Keys(pattern) {
			value, _ := tx.Get(key)
			ttl := "-"
			if d := tx.TTL(key); d >= 0 {
				ttl = d.Round(time.Millisecond).String()
			}
			fmt.Fprintf(w, "%q\t%s\t%s\t%s\n", key, tx.Type(key), ttl, value)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return w.Flush()
}
