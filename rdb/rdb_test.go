package rdb_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/rdb"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// snapshot builds test payloads
type snapshot struct {
	buf bytes.Buffer
}

func newSnapshot() *snapshot {
	s := &snapshot{}
	s.buf.WriteString("REDIS0011")
	return s
}

func (s *snapshot) raw(b ...byte) *snapshot {
	s.buf.Write(b)
	return s
}

// str writes a string with a 6-bit length prefix
func (s *snapshot) str(v string) *snapshot {
	s.buf.WriteByte(byte(len(v)))
	s.buf.WriteString(v)
	return s
}

func (s *snapshot) db(n byte) *snapshot {
	return s.raw(rdb.OpcodeSelectDB, n, rdb.OpcodeResizeDB, 0x01, 0x00)
}

func (s *snapshot) set(key, value string) *snapshot {
	return s.raw(rdb.TypeString).str(key).str(value)
}

func (s *snapshot) end() []byte {
	s.raw(rdb.OpcodeEOF, 0, 0, 0, 0, 0, 0, 0, 0)
	return s.buf.Bytes()
}

func mustGet(t *testing.T, st *storage.Store, key string) string {
	t.Helper()
	v, ok := st.Get(key)
	if !ok {
		t.Fatalf("Get(%q) missing", key)
	}
	return v.String()
}

func TestLoadFallbackPayload(t *testing.T) {
	st := storage.New()

	stats, err := rdb.Load(bytes.NewReader(rdb.FallbackPayload()), st)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	keys := st.Keys("*")
	if len(keys) != 1 || keys[0] != "banana" {
		t.Fatalf("Keys() = %v, want [banana]", keys)
	}
	if got := mustGet(t, st, "banana"); got != "mango" {
		t.Errorf("banana = %q, want mango", got)
	}
	err = st.Exec(func(tx *storage.Tx) error {
		if ttl := tx.TTL("banana"); ttl != -1 {
			t.Errorf("TTL(banana) = %v, want no expiry", ttl)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	if stats.Version != 11 {
		t.Errorf("Version = %d, want 11", stats.Version)
	}
	if stats.Aux["redis-ver"] != "7.2.0" {
		t.Errorf("Aux[redis-ver] = %q, want 7.2.0", stats.Aux["redis-ver"])
	}
	if stats.Aux["redis-bits"] != "64" {
		t.Errorf("Aux[redis-bits] = %q, want 64", stats.Aux["redis-bits"])
	}
	if stats.Keys != 1 {
		t.Errorf("Keys = %d, want 1", stats.Keys)
	}
}

func TestLoadExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	st := storage.New(storage.WithClock(func() time.Time { return now }))

	future := make([]byte, 8)
	binary.LittleEndian.PutUint64(future, uint64(now.Add(time.Hour).UnixMilli()))
	past := make([]byte, 8)
	binary.LittleEndian.PutUint64(past, uint64(now.Add(-time.Hour).UnixMilli()))
	futureSecs := make([]byte, 4)
	binary.LittleEndian.PutUint32(futureSecs, uint32(now.Add(time.Minute).Unix()))

	payload := newSnapshot().db(0).
		raw(rdb.OpcodeExpiryMs).raw(future...).set("live", "1").
		raw(rdb.OpcodeExpiryMs).raw(past...).set("dead", "2").
		raw(rdb.OpcodeExpiry).raw(futureSecs...).set("secs", "3").
		set("plain", "4").
		end()

	stats, err := rdb.Load(bytes.NewReader(payload), st)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if stats.Expired != 1 {
		t.Errorf("Expired = %d, want 1", stats.Expired)
	}

	if _, ok := st.Get("dead"); ok {
		t.Error("expired key was loaded")
	}

	err = st.Exec(func(tx *storage.Tx) error {
		if ttl := tx.TTL("live"); ttl != time.Hour {
			t.Errorf("TTL(live) = %v, want 1h", ttl)
		}
		if ttl := tx.TTL("secs"); ttl != time.Minute {
			t.Errorf("TTL(secs) = %v, want 1m", ttl)
		}
		if ttl := tx.TTL("plain"); ttl != -1 {
			t.Errorf("TTL(plain) = %v, want -1", ttl)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
}

func TestLoadEncodings(t *testing.T) {
	st := storage.New()

	long := strings.Repeat("z", 300)
	len32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(len32, 3)
	len64 := make([]byte, 8)
	binary.LittleEndian.PutUint64(len64, 2)

	payload := newSnapshot().db(0).
		raw(rdb.TypeString).str("int8").raw(0xC0, 0xF6).
		raw(rdb.TypeString).str("int16").raw(0xC1, 0x39, 0x30).
		raw(rdb.TypeString).str("int32").raw(0xC2, 0xFF, 0xFF, 0xFF, 0xFF).
		raw(rdb.TypeString).str("lzf").raw(0xC3, 0x05, 0x0A, 0x00, 'a', 0xE0, 0x00, 0x00).
		raw(rdb.TypeString).str("len14").raw(0x41, 0x2C).raw([]byte(long)...).
		raw(rdb.TypeString).str("len32").raw(0x80).raw(len32...).raw('a', 'b', 'c').
		raw(rdb.TypeString).str("len64").raw(0x81).raw(len64...).raw('h', 'i').
		raw(rdb.TypeString).str("empty").raw(0x00).
		end()

	if _, err := rdb.Load(bytes.NewReader(payload), st); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := map[string]string{
		"int8":  "-10",
		"int16": "12345",
		"int32": "-1",
		"lzf":   "aaaaaaaaaa",
		"len14": long,
		"len32": "abc",
		"len64": "hi",
		"empty": "",
	}
	for key, want := range tests {
		if got := mustGet(t, st, key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestLoadBigEndianLengths(t *testing.T) {
	st := storage.New()

	len32 := make([]byte, 4)
	binary.BigEndian.PutUint32(len32, 3)
	payload := newSnapshot().db(0).
		raw(rdb.TypeString).str("k").raw(0x80).raw(len32...).raw('x', 'y', 'z').
		end()

	_, err := rdb.Load(bytes.NewReader(payload), st, rdb.WithLengthByteOrder(binary.BigEndian))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := mustGet(t, st, "k"); got != "xyz" {
		t.Errorf("k = %q, want xyz", got)
	}
}

func TestLoadListsAndSkippedTypes(t *testing.T) {
	st := storage.New()

	payload := newSnapshot().db(0).
		raw(rdb.TypeList).str("list").raw(0x02).str("a").str("b").
		raw(rdb.TypeSet).str("set").raw(0x02).str("x").str("y").
		raw(rdb.TypeHash).str("hash").raw(0x01).str("f").str("v").
		raw(rdb.TypeZSet).str("zset").raw(0x01).str("m").raw(0x01, '1').
		raw(rdb.TypeZSet2).str("zset2").raw(0x01).str("m").raw(0, 0, 0, 0, 0, 0, 0xF0, 0x3F).
		raw(rdb.TypeSetListpack).str("lp").str("blob").
		raw(rdb.TypeListQuicklist2).str("ql").raw(0x01, 0x02).str("node").
		set("after", "ok").
		end()

	stats, err := rdb.Load(bytes.NewReader(payload), st)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	list, ok := st.Get("list")
	if !ok {
		t.Fatal("list missing")
	}
	if !protocol.Equal(list, protocol.Array(protocol.BulkStringFromString("a"), protocol.BulkStringFromString("b"))) {
		t.Errorf("list = %v, want [a, b]", list)
	}
	if got := mustGet(t, st, "after"); got != "ok" {
		t.Errorf("after = %q, want ok", got)
	}
	if stats.Skipped != 6 {
		t.Errorf("Skipped = %d, want 6", stats.Skipped)
	}
	if n := len(st.Keys("*")); n != 2 {
		t.Errorf("len(Keys()) = %d, want 2", n)
	}
}

func TestLoadIgnoresOtherDatabases(t *testing.T) {
	st := storage.New()

	payload := newSnapshot().
		db(0).set("zero", "0").
		db(3).set("three", "3").
		end()

	stats, err := rdb.Load(bytes.NewReader(payload), st)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := st.Get("three"); ok {
		t.Error("key from database 3 was loaded")
	}
	if stats.OtherDBs != 1 {
		t.Errorf("OtherDBs = %d, want 1", stats.OtherDBs)
	}
}

func TestLoadCorruptIsFatal(t *testing.T) {
	valid := newSnapshot().db(0).set("k", "v").end()

	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("RADIS"), valid[5:]...)},
		{"bad version", append([]byte("REDIS00x1"), valid[9:]...)},
		{"future version", append([]byte("REDIS0099"), valid[9:]...)},
		{"missing EOF", valid[:len(valid)-9]},
		{"truncated value", valid[:len(valid)-11]},
		{"unknown value type", newSnapshot().db(0).raw(0x42).str("k").str("v").end()},
		{"invalid length prefix", newSnapshot().db(0).raw(rdb.TypeString).raw(0x85).end()},
		{"invalid special encoding", newSnapshot().db(0).raw(rdb.TypeString).str("k").raw(0xC9).end()},
		{"bad lzf", newSnapshot().db(0).raw(rdb.TypeString).str("k").raw(0xC3, 0x02, 0x05, 0x20, 0x00).end()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := storage.New()
			st.Set("existing", protocol.BulkStringFromString("keep"), nil)

			_, err := rdb.Load(bytes.NewReader(tt.payload), st)
			if !errors.Is(err, rdb.ErrCorrupt) {
				t.Fatalf("Load() error = %v, want ErrCorrupt", err)
			}

			keys := st.Keys("*")
			if len(keys) != 1 || keys[0] != "existing" {
				t.Errorf("store modified after failed load: %v", keys)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	payload := newSnapshot().db(0).set("fromfile", "yes").end()
	if err := os.WriteFile(filepath.Join(dir, "dump.rdb"), payload, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	st := storage.New()
	stats, err := rdb.LoadFile(dir, "dump.rdb", st, true)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if stats.Source != filepath.Join(dir, "dump.rdb") {
		t.Errorf("Source = %q", stats.Source)
	}
	if got := mustGet(t, st, "fromfile"); got != "yes" {
		t.Errorf("fromfile = %q, want yes", got)
	}
}

func TestLoadFileMissingUsesFallback(t *testing.T) {
	st := storage.New()

	stats, err := rdb.LoadFile(t.TempDir(), "absent.rdb", st, false)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if stats.Source != "builtin" {
		t.Errorf("Source = %q, want builtin", stats.Source)
	}
	if got := mustGet(t, st, "banana"); got != "mango" {
		t.Errorf("banana = %q, want mango", got)
	}
}

func TestLoadFileMissingRequired(t *testing.T) {
	st := storage.New()

	_, err := rdb.LoadFile(t.TempDir(), "absent.rdb", st, true)
	if !errors.Is(err, rdb.ErrSnapshotMissing) {
		t.Fatalf("LoadFile() error = %v, want ErrSnapshotMissing", err)
	}
	if st.Len() != 0 {
		t.Errorf("Len() = %d, want 0", st.Len())
	}
}

func TestLoadFileCorruptIsFatal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.rdb"), []byte("REDIS0011\xFE"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := rdb.LoadFile(dir, "bad.rdb", storage.New(), false)
	if !errors.Is(err, rdb.ErrCorrupt) {
		t.Fatalf("LoadFile() error = %v, want ErrCorrupt", err)
	}
}

// recordingHandler captures parser callbacks
type recordingHandler struct {
	events []string
}

func (h *recordingHandler) OnAux(key, value []byte) error {
	h.events = append(h.events, "aux:"+string(key)+"="+string(value))
	return nil
}

func (h *recordingHandler) OnDatabase(index int) error {
	h.events = append(h.events, "db")
	return nil
}

func (h *recordingHandler) OnResizeDB(dbSize, expiresSize uint64) error {
	h.events = append(h.events, "resize")
	return nil
}

func (h *recordingHandler) OnKey(key []byte, value protocol.Value, expiry *time.Time) error {
	h.events = append(h.events, "key:"+string(key)+"="+value.String())
	return nil
}

func (h *recordingHandler) OnEnd() error {
	h.events = append(h.events, "end")
	return nil
}

func TestParserCallbacks(t *testing.T) {
	h := &recordingHandler{}
	p := rdb.NewParser(bytes.NewReader(rdb.FallbackPayload()), h)

	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []string{
		"aux:redis-ver=7.2.0",
		"aux:redis-bits=64",
		"db",
		"resize",
		"key:banana=mango",
		"end",
	}
	if strings.Join(h.events, "|") != strings.Join(want, "|") {
		t.Errorf("events = %v, want %v", h.events, want)
	}
}
