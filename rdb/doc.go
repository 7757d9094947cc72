// Package rdb decodes Redis snapshot (RDB) files into a storage.Store.
//
// Loading is all-or-nothing. Records are staged while the stream is
// decoded and committed to the store only after the EOF opcode is reached;
// any malformed or truncated structure returns an error matching ErrCorrupt
// and leaves the store untouched.
//
// Strings and plain lists are materialized. Sets, sorted sets, hashes and
// the compact blob encodings are decoded so the stream stays in sync, then
// dropped. Keys outside database 0 are dropped as well.
//
// Basic usage:
//
//	st := storage.New()
//	stats, err := rdb.LoadFile("/tmp/redis-data", "rdbfile.rdb", st, false)
//
// When the file cannot be opened LoadFile falls back to a small built-in
// payload holding the single key "banana".
package rdb
