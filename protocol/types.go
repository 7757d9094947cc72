package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ValueType represents the type of a RESP value
type ValueType byte

const (
	// RESP value types
	TypeSimpleString ValueType = '+'
	TypeError        ValueType = '-'
	TypeInteger      ValueType = ':'
	TypeBulkString   ValueType = '$'
	TypeArray        ValueType = '*'
)

// ErrMalformedCommand is returned by ParseCommand when a request is not an
// array of strings.
var ErrMalformedCommand = errors.New("malformed command")

// Value represents a parsed RESP value.
//
// Null is represented by IsNull on a bulk string (the canonical null) or on
// an array (a null array read off the wire).
type Value struct {
	Type    ValueType
	Data    []byte
	Integer int64
	Array   []Value
	IsNull  bool
}

// SimpleString returns a simple string value
func SimpleString(s string) Value {
	return Value{Type: TypeSimpleString, Data: []byte(s)}
}

// ErrorValue returns an error value carrying msg
func ErrorValue(msg string) Value {
	return Value{Type: TypeError, Data: []byte(msg)}
}

// BulkString returns a bulk string value holding b
func BulkString(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{Type: TypeBulkString, Data: b}
}

// BulkStringFromString returns a bulk string value holding s
func BulkStringFromString(s string) Value {
	return Value{Type: TypeBulkString, Data: []byte(s)}
}

// Integer returns an integer value
func Integer(n int64) Value {
	return Value{Type: TypeInteger, Integer: n}
}

// Array returns an array value. A nil slice yields an empty, non-null array.
func Array(values ...Value) Value {
	if values == nil {
		values = []Value{}
	}
	return Value{Type: TypeArray, Array: values}
}

// NullBulkString returns the canonical null value
func NullBulkString() Value {
	return Value{Type: TypeBulkString, IsNull: true}
}

// NullArray returns a null array value
func NullArray() Value {
	return Value{Type: TypeArray, IsNull: true}
}

// IsNil reports whether v is either null representation
func (v Value) IsNil() bool {
	return v.IsNull && (v.Type == TypeBulkString || v.Type == TypeArray)
}

// String returns a string representation of the value
func (v Value) String() string {
	switch v.Type {
	case TypeSimpleString:
		return string(v.Data)
	case TypeError:
		return string(v.Data)
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case TypeBulkString:
		if v.IsNull {
			return "(nil)"
		}
		return string(v.Data)
	case TypeArray:
		if v.IsNull {
			return "(nil)"
		}
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("unknown type %c", v.Type)
	}
}

// Bytes returns the byte representation of the value
func (v Value) Bytes() []byte {
	return v.Data
}

// Int returns the integer value, or 0 if not an integer
func (v Value) Int() int64 {
	return v.Integer
}

// IsError returns true if this is an error value
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// ErrorMsg returns the message of an error value, or "" for other types.
func (v Value) ErrorMsg() string {
	if v.Type == TypeError {
		return string(v.Data)
	}
	return ""
}

// Clone returns a deep copy of v
func (v Value) Clone() Value {
	out := v
	if v.Data != nil {
		out.Data = append([]byte(nil), v.Data...)
	}
	if v.Array != nil {
		out.Array = make([]Value, len(v.Array))
		for i, item := range v.Array {
			out.Array[i] = item.Clone()
		}
	}
	return out
}

// Equal reports whether a and b are structurally identical
func Equal(a, b Value) bool {
	if a.Type != b.Type || a.IsNull != b.IsNull {
		return false
	}
	if a.IsNull {
		return true
	}
	switch a.Type {
	case TypeInteger:
		return a.Integer == b.Integer
	case TypeArray:
		if len(a.Array) != len(b.Array) {
			return false
		}
		for i := range a.Array {
			if !Equal(a.Array[i], b.Array[i]) {
				return false
			}
		}
		return true
	default:
		return bytes.Equal(a.Data, b.Data)
	}
}

// Command represents a Redis command parsed from a RESP array
type Command struct {
	Name string
	Args []Value
}

// ParseCommand parses a RESP array value into a Command.
// The name is kept byte-exact; lookup decides about case.
func ParseCommand(v Value) (*Command, error) {
	if v.Type != TypeArray || v.IsNull || len(v.Array) == 0 {
		return nil, ErrMalformedCommand
	}

	// First element is the command name
	name := v.Array[0]
	if name.IsNull || (name.Type != TypeBulkString && name.Type != TypeSimpleString) {
		return nil, ErrMalformedCommand
	}

	return &Command{
		Name: string(name.Data),
		Args: v.Array[1:],
	}, nil
}

// NewCommand builds a command from string arguments
func NewCommand(name string, args ...string) *Command {
	cmd := &Command{Name: name, Args: make([]Value, len(args))}
	for i, arg := range args {
		cmd.Args[i] = BulkStringFromString(arg)
	}
	return cmd
}

// Value returns the command encoded as a RESP array of bulk strings
func (c *Command) Value() Value {
	values := make([]Value, 0, len(c.Args)+1)
	values = append(values, BulkStringFromString(c.Name))
	values = append(values, c.Args...)
	return Array(values...)
}

// String returns a string representation of the command
func (c *Command) String() string {
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = arg.String()
	}
	return strings.TrimSpace(c.Name + " " + strings.Join(args, " "))
}
