package command

import (
	"errors"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

func listCommands() []*spec {
	return []*spec{
		{name: "RPUSH", arity: -3, handler: cmdRPush},
		{name: "LPUSH", arity: -3, handler: cmdLPush},
		{name: "LRANGE", arity: 4, handler: cmdLRange},
	}
}

func cmdRPush(c *Context, args [][]byte) (protocol.Value, error) {
	n, err := c.tx.AppendToList(string(args[0]), bulkValues(args[1:])...)
	if err != nil {
		return protocol.Value{}, listError(err)
	}
	return protocol.Integer(int64(n)), nil
}

func cmdLPush(c *Context, args [][]byte) (protocol.Value, error) {
	n, err := c.tx.PrependToList(string(args[0]), bulkValues(args[1:])...)
	if err != nil {
		return protocol.Value{}, listError(err)
	}
	return protocol.Integer(int64(n)), nil
}

func cmdLRange(c *Context, args [][]byte) (protocol.Value, error) {
	start, err := parseInt(args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	stop, err := parseInt(args[2])
	if err != nil {
		return protocol.Value{}, err
	}

	items, err := c.tx.ListRange(string(args[0]), clampIndex(start), clampIndex(stop))
	if err != nil {
		return protocol.Value{}, listError(err)
	}
	return protocol.Array(items...), nil
}

func bulkValues(args [][]byte) []protocol.Value {
	out := make([]protocol.Value, len(args))
	for i, a := range args {
		out[i] = protocol.BulkString(a)
	}
	return out
}

// clampIndex keeps huge indexes from overflowing int on 32-bit platforms
func clampIndex(n int64) int {
	const limit = 1 << 30
	switch {
	case n > limit:
		return limit
	case n < -limit:
		return -limit
	}
	return int(n)
}

func listError(err error) error {
	if errors.Is(err, storage.ErrWrongType) {
		return errWrongType
	}
	return err
}
