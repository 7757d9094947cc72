package rdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

// RDB format constants
const (
	MaxSupportedVersion = 12

	OpcodeModuleAux = 0xF7
	OpcodeIdle      = 0xF8
	OpcodeFreq      = 0xF9
	OpcodeAux       = 0xFA
	OpcodeResizeDB  = 0xFB
	OpcodeExpiryMs  = 0xFC
	OpcodeExpiry    = 0xFD
	OpcodeSelectDB  = 0xFE
	OpcodeEOF       = 0xFF

	TypeString         = 0
	TypeList           = 1
	TypeSet            = 2
	TypeZSet           = 3
	TypeHash           = 4
	TypeZSet2          = 5
	TypeHashZipmap     = 9
	TypeListZiplist    = 10
	TypeSetIntset      = 11
	TypeZSetZiplist    = 12
	TypeHashZiplist    = 13
	TypeListQuicklist  = 14
	TypeHashListpack   = 16
	TypeZSetListpack   = 17
	TypeListQuicklist2 = 18
	TypeSetListpack    = 20
)

// Special string encodings selected by the low six bits of an 11xxxxxx byte
const (
	encInt8  = 0
	encInt16 = 1
	encInt32 = 2
	encLZF   = 3
)

const (
	// maxStringSize bounds a single decoded string
	maxStringSize = 512 * 1024 * 1024

	// checksumSize is the length of the trailer after the EOF opcode
	checksumSize = 8
)

// ErrCorrupt is matched by every structural decoding failure
var ErrCorrupt = errors.New("corrupt snapshot")

// CorruptError locates a decoding failure in the input
type CorruptError struct {
	Offset int64
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt snapshot at offset %d: %v", e.Offset, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCorrupt) true for every CorruptError
func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}

// Handler receives decoded records
type Handler interface {
	// OnAux is called for each auxiliary metadata field
	OnAux(key, value []byte) error

	// OnDatabase is called when the stream selects a database
	OnDatabase(index int) error

	// OnResizeDB is called with the informational table size hints
	OnResizeDB(dbSize, expiresSize uint64) error

	// OnKey is called for each materialized key
	OnKey(key []byte, value protocol.Value, expiry *time.Time) error

	// OnEnd is called after the EOF opcode
	OnEnd() error
}

// Logger is the logging interface used by the parser
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// WithLogger sets the parser logger
func WithLogger(logger Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLengthByteOrder sets the byte order of 32 and 64 bit lengths.
// The default is little endian; dumps written by Redis itself use big endian.
func WithLengthByteOrder(order binary.ByteOrder) ParserOption {
	return func(p *Parser) {
		p.lengthOrder = order
	}
}

// Parser decodes a snapshot stream. Any structural problem aborts the parse
// with an error matching ErrCorrupt; there is no partial recovery.
type Parser struct {
	br          *bufio.Reader
	handler     Handler
	logger      Logger
	lengthOrder binary.ByteOrder
	offset      int64
	version     int
	skipped     int
}

// NewParser creates a parser reading from r
func NewParser(r io.Reader, handler Handler, opts ...ParserOption) *Parser {
	p := &Parser{
		br:          bufio.NewReader(r),
		handler:     handler,
		logger:      nopLogger{},
		lengthOrder: binary.LittleEndian,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Version returns the format version read from the header
func (p *Parser) Version() int {
	return p.version
}

// Skipped returns how many records had a type that is decoded but not kept
func (p *Parser) Skipped() int {
	return p.skipped
}

func (p *Parser) corrupt(format string, args ...interface{}) error {
	return &CorruptError{Offset: p.offset, Err: fmt.Errorf(format, args...)}
}

// wrap turns an I/O failure into a CorruptError
func (p *Parser) wrap(what string, err error) error {
	var ce *CorruptError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return &CorruptError{Offset: p.offset, Err: fmt.Errorf("%s: %w", what, err)}
}

// Parse decodes the whole stream, calling the handler for each record
func (p *Parser) Parse() error {
	if err := p.readHeader(); err != nil {
		return err
	}

	var expiry *time.Time

	for {
		opcode, err := p.readByte()
		if err != nil {
			return p.wrap("missing EOF marker", err)
		}

		switch opcode {
		case OpcodeEOF:
			if expiry != nil {
				return p.corrupt("expiry without a key before EOF")
			}
			if err := p.readChecksum(); err != nil {
				return err
			}
			return p.handler.OnEnd()

		case OpcodeSelectDB:
			db, err := p.readPlainLength()
			if err != nil {
				return p.wrap("read database index", err)
			}
			if db > math.MaxInt32 {
				return p.corrupt("database index %d out of range", db)
			}
			if err := p.handler.OnDatabase(int(db)); err != nil {
				return err
			}

		case OpcodeResizeDB:
			dbSize, err := p.readPlainLength()
			if err != nil {
				return p.wrap("read hash table size", err)
			}
			expiresSize, err := p.readPlainLength()
			if err != nil {
				return p.wrap("read expire table size", err)
			}
			if err := p.handler.OnResizeDB(dbSize, expiresSize); err != nil {
				return err
			}

		case OpcodeAux:
			key, err := p.readString()
			if err != nil {
				return p.wrap("read aux key", err)
			}
			value, err := p.readString()
			if err != nil {
				return p.wrap("read aux value", err)
			}
			if err := p.handler.OnAux(key, value); err != nil {
				return err
			}

		case OpcodeExpiry:
			var buf [4]byte
			if err := p.readFull(buf[:]); err != nil {
				return p.wrap("read expiry seconds", err)
			}
			t := time.Unix(int64(binary.LittleEndian.Uint32(buf[:])), 0)
			expiry = &t

		case OpcodeExpiryMs:
			var buf [8]byte
			if err := p.readFull(buf[:]); err != nil {
				return p.wrap("read expiry milliseconds", err)
			}
			t := time.UnixMilli(int64(binary.LittleEndian.Uint64(buf[:])))
			expiry = &t

		case OpcodeFreq:
			if _, err := p.readByte(); err != nil {
				return p.wrap("read LFU frequency", err)
			}

		case OpcodeIdle:
			if _, err := p.readPlainLength(); err != nil {
				return p.wrap("read LRU idle time", err)
			}

		case OpcodeModuleAux:
			return p.corrupt("module aux data is not supported")

		default:
			if err := p.readKeyValue(opcode, expiry); err != nil {
				return err
			}
			expiry = nil
		}
	}
}

func (p *Parser) readHeader() error {
	header := make([]byte, 9)
	if err := p.readFull(header); err != nil {
		return p.wrap("read header", err)
	}

	if string(header[:5]) != "REDIS" {
		return &CorruptError{Offset: 0, Err: fmt.Errorf("invalid magic %q", header[:5])}
	}

	for _, c := range header[5:] {
		if c < '0' || c > '9' {
			return &CorruptError{Offset: 5, Err: fmt.Errorf("invalid version %q", header[5:])}
		}
	}
	version, _ := strconv.Atoi(string(header[5:]))
	if version < 1 || version > MaxSupportedVersion {
		return &CorruptError{Offset: 5, Err: fmt.Errorf("unsupported version %d (max supported: %d)", version, MaxSupportedVersion)}
	}
	p.version = version

	p.logger.Debug("snapshot header", "version", version)
	return nil
}

// readChecksum consumes the trailer. Versions before 5 have none and a
// short trailer is tolerated since the value is never verified.
func (p *Parser) readChecksum() error {
	if p.version < 5 {
		return nil
	}
	buf := make([]byte, checksumSize)
	n, err := io.ReadFull(p.br, buf)
	p.offset += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return p.wrap("read checksum", err)
	}
	if n < checksumSize {
		p.logger.Debug("snapshot checksum truncated", "bytes", n)
	}
	return nil
}

func (p *Parser) readKeyValue(valueType byte, expiry *time.Time) error {
	key, err := p.readString()
	if err != nil {
		return p.wrap("read key", err)
	}

	value, keep, err := p.readValue(valueType)
	if err != nil {
		return p.wrap(fmt.Sprintf("read value for key %q", key), err)
	}

	if !keep {
		p.skipped++
		p.logger.Debug("skipping unsupported value type", "key", string(key), "type", valueType)
		return nil
	}

	return p.handler.OnKey(key, value, expiry)
}

// readValue decodes a value of the given type. keep is false for types that
// are decoded structurally but not materialized.
func (p *Parser) readValue(valueType byte) (value protocol.Value, keep bool, err error) {
	switch valueType {
	case TypeString:
		s, err := p.readString()
		if err != nil {
			return protocol.Value{}, false, err
		}
		return protocol.BulkString(s), true, nil

	case TypeList:
		n, err := p.readPlainLength()
		if err != nil {
			return protocol.Value{}, false, err
		}
		items := make([]protocol.Value, 0, min(n, 1024))
		for i := uint64(0); i < n; i++ {
			s, err := p.readString()
			if err != nil {
				return protocol.Value{}, false, err
			}
			items = append(items, protocol.BulkString(s))
		}
		return protocol.Array(items...), true, nil

	case TypeSet:
		return protocol.Value{}, false, p.skipStrings(1)

	case TypeHash:
		return protocol.Value{}, false, p.skipStrings(2)

	case TypeZSet:
		n, err := p.readPlainLength()
		if err != nil {
			return protocol.Value{}, false, err
		}
		for i := uint64(0); i < n; i++ {
			if _, err := p.readString(); err != nil {
				return protocol.Value{}, false, err
			}
			if err := p.skipDoubleString(); err != nil {
				return protocol.Value{}, false, err
			}
		}
		return protocol.Value{}, false, nil

	case TypeZSet2:
		n, err := p.readPlainLength()
		if err != nil {
			return protocol.Value{}, false, err
		}
		var score [8]byte
		for i := uint64(0); i < n; i++ {
			if _, err := p.readString(); err != nil {
				return protocol.Value{}, false, err
			}
			if err := p.readFull(score[:]); err != nil {
				return protocol.Value{}, false, err
			}
		}
		return protocol.Value{}, false, nil

	case TypeHashZipmap, TypeListZiplist, TypeSetIntset, TypeZSetZiplist,
		TypeHashZiplist, TypeHashListpack, TypeZSetListpack, TypeSetListpack:
		// Single encoded blob
		_, err := p.readString()
		return protocol.Value{}, false, err

	case TypeListQuicklist:
		return protocol.Value{}, false, p.skipStrings(1)

	case TypeListQuicklist2:
		n, err := p.readPlainLength()
		if err != nil {
			return protocol.Value{}, false, err
		}
		for i := uint64(0); i < n; i++ {
			if _, err := p.readPlainLength(); err != nil {
				return protocol.Value{}, false, err
			}
			if _, err := p.readString(); err != nil {
				return protocol.Value{}, false, err
			}
		}
		return protocol.Value{}, false, nil

	default:
		return protocol.Value{}, false, p.corrupt("unknown value type %d", valueType)
	}
}

// skipStrings reads a count followed by count*per strings
func (p *Parser) skipStrings(per int) error {
	n, err := p.readPlainLength()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		for j := 0; j < per; j++ {
			if _, err := p.readString(); err != nil {
				return err
			}
		}
	}
	return nil
}

// skipDoubleString skips a score in the legacy text form
func (p *Parser) skipDoubleString() error {
	n, err := p.readByte()
	if err != nil {
		return err
	}
	switch n {
	case 253, 254, 255:
		// NaN, +inf, -inf
		return nil
	}
	buf := make([]byte, n)
	return p.readFull(buf)
}

// readLength reads a length-encoded integer. When special is true the low
// six bits of the first byte select an encoding and n is that selector.
func (p *Parser) readLength() (n uint64, special bool, err error) {
	b, err := p.readByte()
	if err != nil {
		return 0, false, err
	}

	switch b >> 6 {
	case 0:
		// 6-bit length
		return uint64(b & 0x3F), false, nil

	case 1:
		// 14-bit length
		b2, err := p.readByte()
		if err != nil {
			return 0, false, err
		}
		return uint64(b&0x3F)<<8 | uint64(b2), false, nil

	case 2:
		switch b {
		case 0x80:
			var buf [4]byte
			if err := p.readFull(buf[:]); err != nil {
				return 0, false, err
			}
			return uint64(p.lengthOrder.Uint32(buf[:])), false, nil
		case 0x81:
			var buf [8]byte
			if err := p.readFull(buf[:]); err != nil {
				return 0, false, err
			}
			return p.lengthOrder.Uint64(buf[:]), false, nil
		default:
			return 0, false, p.corrupt("invalid length prefix 0x%02x", b)
		}

	default:
		return uint64(b & 0x3F), true, nil
	}
}

// readPlainLength reads a length that must not use a special encoding
func (p *Parser) readPlainLength() (uint64, error) {
	n, special, err := p.readLength()
	if err != nil {
		return 0, err
	}
	if special {
		return 0, p.corrupt("unexpected special encoding %d where a length was required", n)
	}
	return n, nil
}

// readString reads a length-prefixed string or a special-encoded one.
// Integer encodings are rendered in decimal.
func (p *Parser) readString() ([]byte, error) {
	n, special, err := p.readLength()
	if err != nil {
		return nil, err
	}
	if !special {
		return p.readStringData(n)
	}

	switch n {
	case encInt8:
		b, err := p.readByte()
		if err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int8(b)), 10), nil

	case encInt16:
		var buf [2]byte
		if err := p.readFull(buf[:]); err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int16(binary.LittleEndian.Uint16(buf[:]))), 10), nil

	case encInt32:
		var buf [4]byte
		if err := p.readFull(buf[:]); err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int32(binary.LittleEndian.Uint32(buf[:]))), 10), nil

	case encLZF:
		return p.readCompressedString()

	default:
		return nil, p.corrupt("invalid special string encoding %d", n)
	}
}

func (p *Parser) readStringData(length uint64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	if length > maxStringSize {
		return nil, p.corrupt("string length %d exceeds limit", length)
	}

	// Grow as bytes arrive so a corrupt length cannot force a huge allocation
	data, err := io.ReadAll(io.LimitReader(p.br, int64(length)))
	p.offset += int64(len(data))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != length {
		return nil, io.ErrUnexpectedEOF
	}
	return data, nil
}

func (p *Parser) readCompressedString() ([]byte, error) {
	compressedLen, err := p.readPlainLength()
	if err != nil {
		return nil, fmt.Errorf("read compressed length: %w", err)
	}
	rawLen, err := p.readPlainLength()
	if err != nil {
		return nil, fmt.Errorf("read uncompressed length: %w", err)
	}
	if rawLen > maxStringSize {
		return nil, p.corrupt("uncompressed length %d exceeds limit", rawLen)
	}

	compressed, err := p.readStringData(compressedLen)
	if err != nil {
		return nil, err
	}

	data, err := lzfDecompress(compressed, int(rawLen))
	if err != nil {
		return nil, p.corrupt("%v", err)
	}
	return data, nil
}

func (p *Parser) readByte() (byte, error) {
	b, err := p.br.ReadByte()
	if err != nil {
		return 0, err
	}
	p.offset++
	return b, nil
}

func (p *Parser) readFull(buf []byte) error {
	n, err := io.ReadFull(p.br, buf)
	p.offset += int64(n)
	return err
}
