package protocol

import (
	"strconv"
	"strings"
)

var lineReplacer = strings.NewReplacer("\r", " ", "\n", " ")

// lineSafe makes s safe for a line-terminated frame
func lineSafe(s string) string {
	if strings.ContainsAny(s, "\r\n") {
		return lineReplacer.Replace(s)
	}
	return s
}

// Serialize returns the canonical RESP encoding of v
func Serialize(v Value) []byte {
	return AppendValue(nil, v)
}

// AppendValue appends the canonical RESP encoding of v to dst.
//
// Encoding is total: a value with an unknown type tag is written as an
// error frame rather than failing.
func AppendValue(dst []byte, v Value) []byte {
	switch v.Type {
	case TypeSimpleString:
		dst = append(dst, '+')
		dst = append(dst, lineSafe(string(v.Data))...)
		return append(dst, CRLF...)

	case TypeError:
		dst = append(dst, '-')
		dst = append(dst, lineSafe(string(v.Data))...)
		return append(dst, CRLF...)

	case TypeInteger:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, v.Integer, 10)
		return append(dst, CRLF...)

	case TypeBulkString:
		if v.IsNull {
			return append(dst, "$-1\r\n"...)
		}
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(v.Data)), 10)
		dst = append(dst, CRLF...)
		dst = append(dst, v.Data...)
		return append(dst, CRLF...)

	case TypeArray:
		if v.IsNull {
			return append(dst, "*-1\r\n"...)
		}
		dst = append(dst, '*')
		dst = strconv.AppendInt(dst, int64(len(v.Array)), 10)
		dst = append(dst, CRLF...)
		for _, item := range v.Array {
			dst = AppendValue(dst, item)
		}
		return dst

	default:
		return append(dst, "-ERR unsupported value type\r\n"...)
	}
}
