package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	redisinmem "github.com/raniellyferreira/redis-inmemory-server"
)

// envPrefix is prepended to every flag read from the environment, e.g.
// REDIS_INMEM_DBFILENAME or REDIS_INMEM_LOG_LEVEL.
const envPrefix = "redis_inmem"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "redis-inmemory-server",
		Short: "in-memory Redis-compatible server",
		Long: fmt.Sprintf(`redis-inmemory-server (v%s)

Loads an RDB snapshot into memory and serves it over the Redis protocol.
Flags can also be set through environment variables named
REDIS_INMEM_<FLAG> (e.g. REDIS_INMEM_LOG_LEVEL=debug), or in .env files.`, redisinmem.Version),
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newDumpCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			info := redisinmem.VersionInfo()
			keys := make([]string, 0, len(info))
			for k := range info {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, info[k])
			}
		},
	}
}

// newViper reads .env files and the environment, then binds the command's
// flags so that an explicitly set flag wins over the environment.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

// addSnapshotFlags registers the flags shared by serve and dump
func addSnapshotFlags(cmd *cobra.Command) {
	cmd.Flags().String("dir", "/tmp/redis-data", "directory holding the snapshot file")
	cmd.Flags().String("dbfilename", "rdbfile.rdb", "snapshot file name")
	cmd.Flags().Bool("require-snapshot", false, "fail instead of loading the built-in payload when the file is missing")
	cmd.Flags().String("length-byte-order", "little", "byte order of 32/64-bit RDB lengths (little, big)")
	cmd.Flags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
}
