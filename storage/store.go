package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

var (
	// ErrWrongType is returned when an operation targets a key holding the
	// wrong kind of value.
	ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

	// ErrPanic wraps a panic recovered inside Exec
	ErrPanic = errors.New("panic during store transaction")
)

// Entry is a stored value with an optional absolute expiry.
// Strings are bulk string values, lists are arrays of bulk strings.
type Entry struct {
	Value     protocol.Value
	ExpiresAt *time.Time
}

// IsExpired reports whether the entry is past its expiry at now
func (e *Entry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Kind returns the Redis type name of the entry
func (e *Entry) Kind() string {
	if e.Value.Type == protocol.TypeArray {
		return "list"
	}
	return "string"
}

func (e *Entry) clone() *Entry {
	out := &Entry{Value: e.Value.Clone()}
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

// Stats holds store counters
type Stats struct {
	Keys          int
	ExpiredEvicts uint64
}

// Store is an in-memory keyspace guarded by a single mutex.
//
// Expired entries are removed lazily by whichever read first observes them;
// nothing sweeps the map in the background.
type Store struct {
	mu      sync.Mutex
	data    map[string]*Entry
	now     func() time.Time
	expired uint64
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for expiry decisions
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		data: make(map[string]*Entry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time
func (s *Store) Now() time.Time {
	return s.now()
}

// Exec runs fn with the store lock held for its whole duration.
// A panic inside fn is recovered and returned wrapped in ErrPanic; the lock
// is released either way.
func (s *Store) Exec(fn func(tx *Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return fn(&Tx{s: s, now: s.now()})
}

// Get returns a copy of the value stored at key
func (s *Store) Get(key string) (protocol.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().Get(key)
}

// Set stores value at key, replacing any previous entry
func (s *Store) Set(key string, value protocol.Value, expiresAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx().Set(key, value, expiresAt)
}

// Keys returns the live keys matching a glob pattern, sorted
func (s *Store) Keys(pattern string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().Keys(pattern)
}

// AppendToList appends values to the list at key, creating it if needed,
// and returns the new length.
func (s *Store) AppendToList(key string, values ...protocol.Value) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().AppendToList(key, values...)
}

// Del removes keys and returns how many existed
func (s *Store) Del(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().Del(keys...)
}

// Exists counts how many of keys are live
func (s *Store) Exists(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().Exists(keys...)
}

// Type returns "string", "list" or "none"
func (s *Store) Type(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().Type(key)
}

// Len returns the number of entries, including expired ones not yet removed
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// BulkLoad inserts entries in one critical section
func (s *Store) BulkLoad(entries map[string]Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range entries {
		e := entry
		s.data[key] = e.clone()
	}
}

// Stats returns a snapshot of store counters
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Keys: len(s.data), ExpiredEvicts: s.expired}
}

func (s *Store) tx() *Tx {
	return &Tx{s: s, now: s.now()}
}

// Tx is a view of the store valid only while the lock is held by Exec.
// All operations observe the same instant for expiry.
type Tx struct {
	s   *Store
	now time.Time
}

// Now returns the instant the transaction uses for expiry decisions
func (tx *Tx) Now() time.Time {
	return tx.now
}

// lookup returns the live entry for key, removing it if expired
func (tx *Tx) lookup(key string) (*Entry, bool) {
	e, ok := tx.s.data[key]
	if !ok {
		return nil, false
	}
	if e.IsExpired(tx.now) {
		delete(tx.s.data, key)
		tx.s.expired++
		return nil, false
	}
	return e, true
}

// Get returns a copy of the value stored at key
func (tx *Tx) Get(key string) (protocol.Value, bool) {
	e, ok := tx.lookup(key)
	if !ok {
		return protocol.Value{}, false
	}
	return e.Value.Clone(), true
}

// Set stores value at key, replacing any previous entry and its expiry
func (tx *Tx) Set(key string, value protocol.Value, expiresAt *time.Time) {
	e := &Entry{Value: value.Clone()}
	if expiresAt != nil {
		t := *expiresAt
		e.ExpiresAt = &t
	}
	tx.s.data[key] = e
}

// Keys returns the live keys matching a glob pattern, sorted
func (tx *Tx) Keys(pattern string) []string {
	keys := make([]string, 0)
	for key, e := range tx.s.data {
		if e.IsExpired(tx.now) {
			delete(tx.s.data, key)
			tx.s.expired++
			continue
		}
		if pattern == "" || pattern == "*" || Match(pattern, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// AppendToList appends values to the tail of the list at key
func (tx *Tx) AppendToList(key string, values ...protocol.Value) (int, error) {
	e, err := tx.listEntry(key)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		e.Value.Array = append(e.Value.Array, v.Clone())
	}
	return len(e.Value.Array), nil
}

// PrependToList pushes values onto the head of the list at key, one at a
// time, so the last value ends up first.
func (tx *Tx) PrependToList(key string, values ...protocol.Value) (int, error) {
	e, err := tx.listEntry(key)
	if err != nil {
		return 0, err
	}
	head := make([]protocol.Value, 0, len(values)+len(e.Value.Array))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i].Clone())
	}
	e.Value.Array = append(head, e.Value.Array...)
	return len(e.Value.Array), nil
}

// listEntry returns the list at key, creating an empty one if absent.
// A non-list entry yields ErrWrongType and is left untouched.
func (tx *Tx) listEntry(key string) (*Entry, error) {
	e, ok := tx.lookup(key)
	if !ok {
		e = &Entry{Value: protocol.Array()}
		tx.s.data[key] = e
		return e, nil
	}
	if e.Value.Type != protocol.TypeArray {
		return nil, ErrWrongType
	}
	return e, nil
}

// ListRange returns the elements between start and stop inclusive.
// Negative indexes count from the tail.
func (tx *Tx) ListRange(key string, start, stop int) ([]protocol.Value, error) {
	e, ok := tx.lookup(key)
	if !ok {
		return []protocol.Value{}, nil
	}
	if e.Value.Type != protocol.TypeArray {
		return nil, ErrWrongType
	}

	n := len(e.Value.Array)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []protocol.Value{}, nil
	}

	out := make([]protocol.Value, 0, stop-start+1)
	for _, v := range e.Value.Array[start : stop+1] {
		out = append(out, v.Clone())
	}
	return out, nil
}

// Del removes keys and returns how many were live
func (tx *Tx) Del(keys ...string) int {
	removed := 0
	for _, key := range keys {
		if _, ok := tx.lookup(key); ok {
			delete(tx.s.data, key)
			removed++
		}
	}
	return removed
}

// Exists counts live keys, counting repeats each time
func (tx *Tx) Exists(keys ...string) int {
	count := 0
	for _, key := range keys {
		if _, ok := tx.lookup(key); ok {
			count++
		}
	}
	return count
}

// Type returns "string", "list" or "none"
func (tx *Tx) Type(key string) string {
	e, ok := tx.lookup(key)
	if !ok {
		return "none"
	}
	return e.Kind()
}

// TTL returns the remaining lifetime of key.
// It returns -1 for a key without expiry and -2 for a missing key.
func (tx *Tx) TTL(key string) time.Duration {
	e, ok := tx.lookup(key)
	if !ok {
		return -2
	}
	if e.ExpiresAt == nil {
		return -1
	}
	return e.ExpiresAt.Sub(tx.now)
}
