package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raniellyferreira/redis-inmemory-server/lua"
	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// Kind is the leading word of an error reply
type Kind string

const (
	KindErr       Kind = "ERR"
	KindWrongType Kind = "WRONGTYPE"
	KindNoScript  Kind = "NOSCRIPT"
)

// Error is a command-level failure. It is sent to the client as an error
// reply and never closes the connection.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return string(e.Kind) + " " + e.Msg
}

func errorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindErr, Msg: fmt.Sprintf(format, args...)}
}

var (
	errSyntax       = errorf("syntax error")
	errNotInteger   = errorf("value is not an integer or out of range")
	errInternal     = errorf("internal error")
	errWrongType    = &Error{Kind: KindWrongType, Msg: "Operation against a key holding the wrong kind of value"}
	errMalformed    = errorf("malformed command")
	errNotInScripts = errorf("This Redis command is not allowed from script")
)

// ErrUnknownCommand builds the reply for a name that is not registered
func ErrUnknownCommand(name string) *Error {
	return errorf("unknown command '%s'", name)
}

// ErrWrongArity builds the reply for a bad argument count
func ErrWrongArity(name string) *Error {
	return errorf("wrong number of arguments for '%s' command", strings.ToLower(name))
}

// ErrWrongKind builds the reply for a non-string argument
func ErrWrongKind(name string) *Error {
	return errorf("wrong kind of value for '%s' command", strings.ToLower(name))
}

// ErrorReply converts any error returned by a command into an error reply
func ErrorReply(err error) protocol.Value {
	var cmdErr *Error
	var scriptErr *lua.ScriptError

	switch {
	case errors.As(err, &cmdErr):
		return protocol.ErrorValue(cmdErr.Error())
	case errors.Is(err, storage.ErrWrongType):
		return protocol.ErrorValue(errWrongType.Error())
	case errors.Is(err, protocol.ErrMalformedCommand):
		return protocol.ErrorValue(errMalformed.Error())
	case errors.Is(err, lua.ErrNoScript):
		return protocol.ErrorValue(lua.ErrNoScript.Error())
	case errors.As(err, &scriptErr):
		return protocol.ErrorValue(scriptErr.Msg)
	case errors.Is(err, storage.ErrPanic):
		return protocol.ErrorValue(errInternal.Error())
	default:
		return protocol.ErrorValue(string(KindErr) + " " + err.Error())
	}
}
