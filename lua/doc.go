// Package lua provides Redis-compatible Lua script execution.
//
// Scripts see KEYS and ARGV tables and a redis table with call, pcall,
// status_reply, error_reply and sha1hex. Commands issued through
// redis.call are handed to an Executor supplied per run, which lets the
// command layer keep a whole script inside one store critical section.
//
// Only the base, table, string and math libraries are opened, and every run
// is bounded by a timeout.
package lua
