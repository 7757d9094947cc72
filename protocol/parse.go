package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

const (
	// CRLF is the Redis protocol line terminator
	CRLF = "\r\n"

	// maxBulkSize is the maximum size for bulk strings (512MB, same as Redis)
	maxBulkSize = 512 * 1024 * 1024

	// maxArraySize is the maximum number of elements in an array
	maxArraySize = 1024 * 1024

	// maxLineSize bounds header and simple-string lines
	maxLineSize = 64 * 1024

	// maxDepth bounds array nesting
	maxDepth = 128
)

var (
	// ErrIncomplete means the buffer holds a prefix of a valid value and more
	// bytes are needed.
	ErrIncomplete = errors.New("incomplete RESP value")

	// ErrProtocol is matched by every malformed-input error.
	ErrProtocol = errors.New("protocol error")
)

// ProtocolError describes malformed input at a byte offset
type ProtocolError struct {
	Offset int
	Msg    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error at offset %d: %s", e.Offset, e.Msg)
}

// Is makes errors.Is(err, ErrProtocol) true for every ProtocolError
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func protocolErrorf(offset int, format string, args ...interface{}) error {
	return &ProtocolError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Parse decodes exactly one value from the start of buf and returns it along
// with the number of bytes consumed.
//
// It returns ErrIncomplete when buf is a strict prefix of a valid encoding and
// a *ProtocolError when the bytes can never become valid. Bulk payloads are
// taken by declared length, so they may contain CR and LF.
func Parse(buf []byte) (Value, int, error) {
	v, end, err := parseAt(buf, 0, 0)
	if err != nil {
		return Value{}, 0, err
	}
	return v, end, nil
}

func parseAt(buf []byte, pos, depth int) (Value, int, error) {
	if pos >= len(buf) {
		return Value{}, 0, ErrIncomplete
	}

	switch ValueType(buf[pos]) {
	case TypeSimpleString, TypeError:
		line, next, err := readLine(buf, pos+1)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Type: ValueType(buf[pos]), Data: copyBytes(line)}, next, nil

	case TypeInteger:
		line, next, err := readLine(buf, pos+1)
		if err != nil {
			return Value{}, 0, err
		}
		n, err := parseInt64(line)
		if err != nil {
			return Value{}, 0, protocolErrorf(pos, "invalid integer %q", line)
		}
		return Integer(n), next, nil

	case TypeBulkString:
		return parseBulkString(buf, pos)

	case TypeArray:
		return parseArray(buf, pos, depth)

	default:
		return Value{}, 0, protocolErrorf(pos, "unknown RESP type byte 0x%02x", buf[pos])
	}
}

func parseBulkString(buf []byte, pos int) (Value, int, error) {
	line, next, err := readLine(buf, pos+1)
	if err != nil {
		return Value{}, 0, err
	}

	length, err := parseInt64(line)
	if err != nil {
		return Value{}, 0, protocolErrorf(pos, "invalid bulk string length %q", line)
	}
	if length == -1 {
		return NullBulkString(), next, nil
	}
	if length < 0 || length > maxBulkSize {
		return Value{}, 0, protocolErrorf(pos, "invalid bulk string length %d", length)
	}

	end := next + int(length)
	if len(buf) < end+2 {
		// Reject a wrong terminator as soon as its first byte is visible
		if len(buf) > end && buf[end] != '\r' {
			return Value{}, 0, protocolErrorf(end, "missing CRLF after bulk string")
		}
		return Value{}, 0, ErrIncomplete
	}
	if buf[end] != '\r' || buf[end+1] != '\n' {
		return Value{}, 0, protocolErrorf(end, "missing CRLF after bulk string")
	}

	return BulkString(copyBytes(buf[next:end])), end + 2, nil
}

func parseArray(buf []byte, pos, depth int) (Value, int, error) {
	if depth >= maxDepth {
		return Value{}, 0, protocolErrorf(pos, "array nesting exceeds %d", maxDepth)
	}

	line, next, err := readLine(buf, pos+1)
	if err != nil {
		return Value{}, 0, err
	}

	count, err := parseInt64(line)
	if err != nil {
		return Value{}, 0, protocolErrorf(pos, "invalid array length %q", line)
	}
	if count == -1 {
		return NullArray(), next, nil
	}
	if count < 0 || count > maxArraySize {
		return Value{}, 0, protocolErrorf(pos, "invalid array length %d", count)
	}

	items := make([]Value, 0, min(int(count), 64))
	for i := int64(0); i < count; i++ {
		item, end, err := parseAt(buf, next, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		items = append(items, item)
		next = end
	}

	return Array(items...), next, nil
}

// readLine returns the bytes between pos and the next CRLF, and the offset
// just past the CRLF.
func readLine(buf []byte, pos int) ([]byte, int, error) {
	idx := bytes.IndexByte(buf[pos:], '\n')
	if idx < 0 {
		if len(buf)-pos > maxLineSize {
			return nil, 0, protocolErrorf(pos, "line exceeds %d bytes", maxLineSize)
		}
		// A bare CR can only be followed by LF
		if n := len(buf); n > pos && bytes.IndexByte(buf[pos:n-1], '\r') >= 0 {
			return nil, 0, protocolErrorf(pos, "CR not followed by LF")
		}
		return nil, 0, ErrIncomplete
	}

	end := pos + idx
	if idx == 0 || buf[end-1] != '\r' {
		return nil, 0, protocolErrorf(end, "missing CRLF terminator")
	}
	line := buf[pos : end-1]
	if bytes.IndexByte(line, '\r') >= 0 {
		return nil, 0, protocolErrorf(pos, "CR not followed by LF")
	}
	return line, end + 1, nil
}

// parseInt64 parses an int64 from a byte slice without allocation
func parseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}

	var neg bool
	var i int

	switch b[0] {
	case '-':
		neg = true
		i = 1
	case '+':
		i = 1
	}

	if i >= len(b) {
		return 0, strconv.ErrSyntax
	}

	var n int64
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, strconv.ErrSyntax
		}

		// Check for overflow
		if n > (1<<63-1)/10 {
			return 0, strconv.ErrRange
		}

		n = n*10 + int64(b[i]-'0')
		if n < 0 {
			return 0, strconv.ErrRange
		}
	}

	if neg {
		return -n, nil
	}
	return n, nil
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
