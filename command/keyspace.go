package command

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

func keyspaceCommands() []*spec {
	return []*spec{
		{name: "GET", arity: 2, handler: cmdGet},
		{name: "SET", arity: -3, handler: cmdSet},
		{name: "KEYS", arity: 2, handler: cmdKeys},
		{name: "DEL", arity: -2, handler: cmdDel},
		{name: "EXISTS", arity: -2, handler: cmdExists},
		{name: "TYPE", arity: 2, handler: cmdType},
		{name: "TTL", arity: 2, handler: cmdTTL},
		{name: "PTTL", arity: 2, handler: cmdPTTL},
	}
}

func cmdGet(c *Context, args [][]byte) (protocol.Value, error) {
	v, ok := c.tx.Get(string(args[0]))
	if !ok {
		return protocol.NullBulkString(), nil
	}
	if v.Type != protocol.TypeBulkString {
		return protocol.Value{}, errWrongType
	}
	return v, nil
}

// cmdSet handles SET key value [PX ms | EX s]
func cmdSet(c *Context, args [][]byte) (protocol.Value, error) {
	key, value := string(args[0]), args[1]

	var expiresAt *time.Time
	for i := 2; i < len(args); i++ {
		flag := string(args[i])
		var unit time.Duration
		switch {
		case strings.EqualFold(flag, "PX"):
			unit = time.Millisecond
		case strings.EqualFold(flag, "EX"):
			unit = time.Second
		default:
			return protocol.Value{}, errSyntax
		}
		if expiresAt != nil || i+1 >= len(args) {
			return protocol.Value{}, errSyntax
		}
		i++

		n, err := parseInt(args[i])
		if err != nil {
			return protocol.Value{}, err
		}
		if n <= 0 || n > math.MaxInt64/int64(unit) {
			return protocol.Value{}, errorf("invalid expire time in 'set' command")
		}
		at := c.tx.Now().Add(time.Duration(n) * unit)
		expiresAt = &at
	}

	c.tx.Set(key, protocol.BulkString(value), expiresAt)
	return protocol.SimpleString("OK"), nil
}

func cmdKeys(c *Context, args [][]byte) (protocol.Value, error) {
	keys := c.tx.Keys(string(args[0]))
	out := make([]protocol.Value, len(keys))
	for i, k := range keys {
		out[i] = protocol.BulkStringFromString(k)
	}
	return protocol.Array(out...), nil
}

func cmdDel(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.Integer(int64(c.tx.Del(toStrings(args)...))), nil
}

func cmdExists(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.Integer(int64(c.tx.Exists(toStrings(args)...))), nil
}

func cmdType(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.SimpleString(c.tx.Type(string(args[0]))), nil
}

func cmdTTL(c *Context, args [][]byte) (protocol.Value, error) {
	return ttlReply(c.tx.TTL(string(args[0])), time.Second), nil
}

func cmdPTTL(c *Context, args [][]byte) (protocol.Value, error) {
	return ttlReply(c.tx.TTL(string(args[0])), time.Millisecond), nil
}

// ttlReply keeps the -1/-2 markers and rounds a live lifetime up to unit
func ttlReply(ttl, unit time.Duration) protocol.Value {
	if ttl < 0 {
		return protocol.Integer(int64(ttl))
	}
	return protocol.Integer(int64((ttl + unit - 1) / unit))
}

func parseInt(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, errNotInteger
	}
	return n, nil
}

func toStrings(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}
