package rdb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// ErrSnapshotMissing is returned by LoadFile when the file cannot be read
// and the fallback payload is disabled.
var ErrSnapshotMissing = errors.New("snapshot file not found")

// fallbackPayload is served when no snapshot file exists: version 11, two
// aux fields (redis-ver 7.2.0, redis-bits 64), database 0 holding
// banana -> mango, then EOF and trailer bytes.
var fallbackPayload = []byte{
	'R', 'E', 'D', 'I', 'S', '0', '0', '1', '1',
	OpcodeAux, 0x09, 'r', 'e', 'd', 'i', 's', '-', 'v', 'e', 'r',
	0x05, '7', '.', '2', '.', '0',
	OpcodeAux, 0x0A, 'r', 'e', 'd', 'i', 's', '-', 'b', 'i', 't', 's',
	0xC0, 0x40,
	OpcodeSelectDB, 0x00,
	OpcodeResizeDB, 0x01, 0x00,
	TypeString, 0x06, 'b', 'a', 'n', 'a', 'n', 'a', 0x05, 'm', 'a', 'n', 'g', 'o',
	OpcodeEOF,
	0x53, 0x19, 0x39, 0x63, 0x07, 0xDB, 0x0D, 0xC0, 0x0A,
}

// FallbackPayload returns a copy of the built-in snapshot
func FallbackPayload() []byte {
	return append([]byte(nil), fallbackPayload...)
}

// LoadStats describes a completed load
type LoadStats struct {
	Source    string
	Version   int
	Aux       map[string]string
	Keys      int
	Expired   int
	Skipped   int
	OtherDBs  int
	Duration  time.Duration
	FromBytes int64
}

// loader stages decoded records so nothing reaches the store unless the
// whole stream decodes.
type loader struct {
	now     time.Time
	db      int
	entries map[string]storage.Entry
	stats   *LoadStats
	logger  Logger
}

func (l *loader) OnAux(key, value []byte) error {
	l.stats.Aux[string(key)] = string(value)
	return nil
}

func (l *loader) OnDatabase(index int) error {
	l.db = index
	return nil
}

func (l *loader) OnResizeDB(dbSize, expiresSize uint64) error {
	l.logger.Debug("snapshot resize hint", "db", l.db, "keys", dbSize, "expires", expiresSize)
	return nil
}

func (l *loader) OnKey(key []byte, value protocol.Value, expiry *time.Time) error {
	if l.db != 0 {
		l.stats.OtherDBs++
		return nil
	}
	if expiry != nil && !l.now.Before(*expiry) {
		l.stats.Expired++
		return nil
	}
	l.entries[string(key)] = storage.Entry{Value: value, ExpiresAt: expiry}
	return nil
}

func (l *loader) OnEnd() error {
	return nil
}

// Load decodes a snapshot from r into st. On any error st is left untouched.
func Load(r io.Reader, st *storage.Store, opts ...ParserOption) (*LoadStats, error) {
	start := time.Now()

	cr := &countingReader{r: r}
	l := &loader{
		now:     st.Now(),
		entries: make(map[string]storage.Entry),
		stats:   &LoadStats{Aux: make(map[string]string)},
		logger:  nopLogger{},
	}
	p := NewParser(cr, l, opts...)
	l.logger = p.logger

	if err := p.Parse(); err != nil {
		return nil, err
	}

	st.BulkLoad(l.entries)

	l.stats.Version = p.Version()
	l.stats.Keys = len(l.entries)
	l.stats.Skipped = p.Skipped()
	l.stats.FromBytes = cr.n
	l.stats.Duration = time.Since(start)
	return l.stats, nil
}

// LoadFile loads dir/filename into st. When the file cannot be opened the
// built-in payload is loaded instead, unless requireFile is set.
// A file that exists but fails to decode is always an error.
func LoadFile(dir, filename string, st *storage.Store, requireFile bool, opts ...ParserOption) (*LoadStats, error) {
	path := filepath.Join(dir, filename)

	p := &Parser{logger: nopLogger{}}
	for _, opt := range opts {
		opt(p)
	}
	logger := p.logger

	f, err := os.Open(path)
	if err != nil {
		if requireFile {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrSnapshotMissing, path)
			}
			return nil, fmt.Errorf("open snapshot %s: %w", path, err)
		}
		logger.Info("snapshot not readable, loading built-in payload", "path", path, "error", err)

		stats, err := Load(bytes.NewReader(fallbackPayload), st, opts...)
		if err != nil {
			return nil, fmt.Errorf("load built-in snapshot: %w", err)
		}
		stats.Source = "builtin"
		return stats, nil
	}
	defer f.Close()

	stats, err := Load(f, st, opts...)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	stats.Source = path
	return stats, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
