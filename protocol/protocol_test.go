package protocol_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/tidwall/resp"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected protocol.Value
	}{
		{
			name:     "simple string",
			input:    "+OK\r\n",
			expected: protocol.SimpleString("OK"),
		},
		{
			name:     "error",
			input:    "-ERR unknown command\r\n",
			expected: protocol.ErrorValue("ERR unknown command"),
		},
		{
			name:     "integer",
			input:    ":42\r\n",
			expected: protocol.Integer(42),
		},
		{
			name:     "negative integer",
			input:    ":-7\r\n",
			expected: protocol.Integer(-7),
		},
		{
			name:     "bulk string",
			input:    "$5\r\nhello\r\n",
			expected: protocol.BulkStringFromString("hello"),
		},
		{
			name:     "bulk string with CRLF inside",
			input:    "$7\r\nab\r\ncd\n\r\n",
			expected: protocol.BulkStringFromString("ab\r\ncd\n"),
		},
		{
			name:     "null bulk string",
			input:    "$-1\r\n",
			expected: protocol.NullBulkString(),
		},
		{
			name:     "empty bulk string",
			input:    "$0\r\n\r\n",
			expected: protocol.BulkStringFromString(""),
		},
		{
			name:     "null array",
			input:    "*-1\r\n",
			expected: protocol.NullArray(),
		},
		{
			name:     "empty array",
			input:    "*0\r\n",
			expected: protocol.Array(),
		},
		{
			name:  "nested array",
			input: "*2\r\n*2\r\n:1\r\n$1\r\na\r\n$-1\r\n",
			expected: protocol.Array(
				protocol.Array(protocol.Integer(1), protocol.BulkStringFromString("a")),
				protocol.NullBulkString(),
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, n, err := protocol.Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if n != len(tt.input) {
				t.Errorf("Parse() consumed %d bytes, want %d", n, len(tt.input))
			}
			if !protocol.Equal(value, tt.expected) {
				t.Errorf("Parse() = %v, want %v", value, tt.expected)
			}
		})
	}
}

func TestParseConsumesOneValue(t *testing.T) {
	input := []byte("+PONG\r\n:1\r\n")

	value, n, err := protocol.Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n != 7 {
		t.Errorf("Parse() consumed %d bytes, want 7", n)
	}
	if !protocol.Equal(value, protocol.SimpleString("PONG")) {
		t.Errorf("Parse() = %v, want PONG", value)
	}

	value, _, err = protocol.Parse(input[n:])
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if value.Integer != 1 {
		t.Errorf("second value = %v, want 1", value)
	}
}

func TestParseIncompletePrefixes(t *testing.T) {
	encodings := []string{
		"+OK\r\n",
		":12345\r\n",
		"$5\r\nhello\r\n",
		"$4\r\na\r\nb\r\n",
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n",
		"*2\r\n*1\r\n$-1\r\n:0\r\n",
	}

	for _, enc := range encodings {
		for i := 0; i < len(enc); i++ {
			prefix := []byte(enc[:i])
			_, _, err := protocol.Parse(prefix)
			if !errors.Is(err, protocol.ErrIncomplete) {
				t.Errorf("Parse(%q) error = %v, want ErrIncomplete", prefix, err)
			}
		}
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown prefix", "?hello\r\n"},
		{"bad bulk length", "$abc\r\nhello\r\n"},
		{"negative bulk length", "$-2\r\n"},
		{"bulk too long for terminator", "$3\r\nhelloworld\r\n"},
		{"bad array count", "*x\r\n"},
		{"negative array count", "*-5\r\n"},
		{"bad integer", ":12a\r\n"},
		{"LF without CR", "+OK\n"},
		{"CR not followed by LF", "+O\rK"},
		{"malformed element", "*2\r\n$1\r\na\r\n!\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := protocol.Parse([]byte(tt.input))
			if !errors.Is(err, protocol.ErrProtocol) {
				t.Fatalf("Parse(%q) error = %v, want ErrProtocol", tt.input, err)
			}
			var perr *protocol.ProtocolError
			if !errors.As(err, &perr) {
				t.Errorf("error %T is not *ProtocolError", err)
			}
		})
	}
}

func TestSerialize(t *testing.T) {
	tests := []struct {
		name     string
		value    protocol.Value
		expected string
	}{
		{"simple string", protocol.SimpleString("OK"), "+OK\r\n"},
		{"error", protocol.ErrorValue("ERR bad"), "-ERR bad\r\n"},
		{"error with newline", protocol.ErrorValue("ERR a\r\nb"), "-ERR a  b\r\n"},
		{"integer", protocol.Integer(-3), ":-3\r\n"},
		{"bulk string", protocol.BulkStringFromString("hey"), "$3\r\nhey\r\n"},
		{"null", protocol.NullBulkString(), "$-1\r\n"},
		{"null array", protocol.NullArray(), "*-1\r\n"},
		{"empty array", protocol.Array(), "*0\r\n"},
		{
			"array",
			protocol.Array(protocol.BulkStringFromString("dir"), protocol.BulkStringFromString("/tmp")),
			"*2\r\n$3\r\ndir\r\n$4\r\n/tmp\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(protocol.Serialize(tt.value))
			if got != tt.expected {
				t.Errorf("Serialize() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	values := []protocol.Value{
		protocol.SimpleString("PONG"),
		protocol.Integer(0),
		protocol.BulkString([]byte{0, '\r', '\n', 0xff}),
		protocol.NullBulkString(),
		protocol.Array(
			protocol.BulkStringFromString("x"),
			protocol.Array(protocol.Integer(9), protocol.NullBulkString()),
			protocol.Array(),
		),
	}

	for _, v := range values {
		enc := protocol.Serialize(v)
		got, n, err := protocol.Parse(enc)
		if err != nil {
			t.Fatalf("Parse(Serialize(%v)) error = %v", v, err)
		}
		if n != len(enc) {
			t.Errorf("consumed %d bytes, want %d", n, len(enc))
		}
		if !protocol.Equal(got, v) {
			t.Errorf("round trip = %v, want %v", got, v)
		}
	}
}

// An independent decoder must read our encoding the same way.
func TestSerializeReadableByTidwallResp(t *testing.T) {
	v := protocol.Array(
		protocol.BulkStringFromString("RPUSH"),
		protocol.BulkStringFromString("list"),
		protocol.BulkString([]byte("a\r\nb")),
		protocol.Integer(17),
	)

	rd := resp.NewReader(bytes.NewReader(protocol.Serialize(v)))
	got, _, err := rd.ReadValue()
	if err != nil {
		t.Fatalf("ReadValue() error = %v", err)
	}
	if got.Type() != resp.Array {
		t.Fatalf("Type() = %v, want Array", got.Type())
	}
	items := got.Array()
	if len(items) != 4 {
		t.Fatalf("len(Array()) = %d, want 4", len(items))
	}
	if items[2].String() != "a\r\nb" {
		t.Errorf("item 2 = %q, want %q", items[2].String(), "a\r\nb")
	}
	if items[3].Integer() != 17 {
		t.Errorf("item 3 = %d, want 17", items[3].Integer())
	}
}

func TestReaderSplitReads(t *testing.T) {
	input := "*2\r\n$4\r\nECHO\r\n$5\r\nhello\r\n+OK\r\n"

	reader := protocol.NewReader(iotest.OneByteReader(strings.NewReader(input)))

	first, err := reader.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext() error = %v", err)
	}
	cmd, err := protocol.ParseCommand(first)
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if cmd.Name != "ECHO" || len(cmd.Args) != 1 || cmd.Args[0].String() != "hello" {
		t.Errorf("command = %v, want ECHO hello", cmd)
	}

	second, err := reader.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext() error = %v", err)
	}
	if second.String() != "OK" {
		t.Errorf("second = %v, want OK", second)
	}

	if _, err := reader.ReadNext(); err != io.EOF {
		t.Errorf("ReadNext() at end error = %v, want io.EOF", err)
	}
}

func TestReaderLargeBulkString(t *testing.T) {
	payload := strings.Repeat("x", 100000)
	input := "$100000\r\n" + payload + "\r\n"

	reader := protocol.NewReader(strings.NewReader(input))
	value, err := reader.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext() error = %v", err)
	}
	if len(value.Data) != len(payload) {
		t.Errorf("len(Data) = %d, want %d", len(value.Data), len(payload))
	}
}

func TestReaderTruncated(t *testing.T) {
	reader := protocol.NewReader(strings.NewReader("$5\r\nhel"))
	if _, err := reader.ReadNext(); err != io.ErrUnexpectedEOF {
		t.Errorf("ReadNext() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReaderMalformed(t *testing.T) {
	reader := protocol.NewReader(strings.NewReader("&oops\r\n"))
	if _, err := reader.ReadNext(); !errors.Is(err, protocol.ErrProtocol) {
		t.Errorf("ReadNext() error = %v, want ErrProtocol", err)
	}
}

func TestRESPWriter(t *testing.T) {
	var buf bytes.Buffer
	writer := protocol.NewWriter(&buf)

	for _, v := range []protocol.Value{
		protocol.SimpleString("OK"),
		protocol.ErrorValue("ERR x\ny"),
		protocol.Integer(5),
		protocol.NullBulkString(),
		{Type: protocol.ValueType('?')},
	} {
		if err := writer.WriteValue(v); err != nil {
			t.Fatalf("WriteValue(%v) error = %v", v, err)
		}
	}
	if err := writer.WriteCommand("GET", "key"); err != nil {
		t.Fatalf("WriteCommand() error = %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	expected := "+OK\r\n-ERR x y\r\n:5\r\n$-1\r\n-ERR unsupported value type\r\n*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n"
	if buf.String() != expected {
		t.Errorf("output = %q, want %q", buf.String(), expected)
	}
}

func TestWriterMatchesSerialize(t *testing.T) {
	v := protocol.Array(
		protocol.SimpleString("OK"),
		protocol.Integer(1),
		protocol.BulkStringFromString("v"),
		protocol.NullBulkString(),
		protocol.NullArray(),
	)

	var buf bytes.Buffer
	writer := protocol.NewWriter(&buf)
	if err := writer.WriteValue(v); err != nil {
		t.Fatalf("WriteValue() error = %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if !bytes.Equal(buf.Bytes(), protocol.Serialize(v)) {
		t.Errorf("WriteValue() = %q, Serialize() = %q", buf.Bytes(), protocol.Serialize(v))
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		value   protocol.Value
		want    string
		args    int
		wantErr bool
	}{
		{
			name:  "bulk string name",
			value: protocol.NewCommand("set", "k", "v").Value(),
			want:  "set",
			args:  2,
		},
		{
			name:  "simple string name",
			value: protocol.Array(protocol.SimpleString("PING")),
			want:  "PING",
		},
		{name: "not an array", value: protocol.BulkStringFromString("PING"), wantErr: true},
		{name: "empty array", value: protocol.Array(), wantErr: true},
		{name: "null array", value: protocol.NullArray(), wantErr: true},
		{name: "integer name", value: protocol.Array(protocol.Integer(1)), wantErr: true},
		{name: "null name", value: protocol.Array(protocol.NullBulkString()), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := protocol.ParseCommand(tt.value)
			if tt.wantErr {
				if !errors.Is(err, protocol.ErrMalformedCommand) {
					t.Fatalf("ParseCommand() error = %v, want ErrMalformedCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if cmd.Name != tt.want {
				t.Errorf("Name = %q, want %q", cmd.Name, tt.want)
			}
			if len(cmd.Args) != tt.args {
				t.Errorf("len(Args) = %d, want %d", len(cmd.Args), tt.args)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		value    protocol.Value
		expected string
	}{
		{protocol.SimpleString("OK"), "OK"},
		{protocol.Integer(42), "42"},
		{protocol.NullBulkString(), "(nil)"},
		{protocol.Array(protocol.BulkStringFromString("a"), protocol.Integer(1)), "[a, 1]"},
	}

	for _, tt := range tests {
		if got := tt.value.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}
