// Package redisinmem provides an embeddable in-memory Redis-compatible
// server.
//
// At startup the instance loads an RDB snapshot from the configured
// directory, falling back to a small built-in payload when the file is
// missing, then serves RESP clients on a TCP listener.
//
// Basic usage:
//
//	inst, err := redisinmem.New(
//		redisinmem.WithAddr("127.0.0.1:6379"),
//		redisinmem.WithDir("/tmp/redis-data"),
//		redisinmem.WithDBFilename("rdbfile.rdb"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Close()
//
//	if err := inst.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// The supported commands are PING, ECHO, GET, SET (with PX or EX), KEYS,
// CONFIG GET, RPUSH, LPUSH, LRANGE, DEL, EXISTS, TYPE, TTL, PTTL, EVAL,
// EVALSHA, SCRIPT and QUIT. Each command runs under a single store lock, and
// expired keys are removed when a read first observes them.
//
// For a runnable program, see the examples/ directory and
// cmd/redis-inmemory-server.
package redisinmem
