package command

import (
	"strings"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// ConfigSource answers CONFIG GET
type ConfigSource interface {
	ConfigGet(name string) (string, bool)
}

// configParams lists the parameters CONFIG GET can report, in reply order
var configParams = []string{"dir", "dbfilename"}

// StaticConfig is a fixed ConfigSource
type StaticConfig struct {
	Dir        string
	DBFilename string
}

// ConfigGet implements ConfigSource
func (c StaticConfig) ConfigGet(name string) (string, bool) {
	switch name {
	case "dir":
		return c.Dir, true
	case "dbfilename":
		return c.DBFilename, true
	}
	return "", false
}

func serverCommands() []*spec {
	return []*spec{
		{name: "PING", arity: -1, handler: cmdPing},
		{name: "ECHO", arity: 2, handler: cmdEcho},
		{name: "CONFIG", arity: -3, handler: cmdConfig},
		{name: "QUIT", arity: -1, noScript: true, handler: cmdQuit},
	}
}

func cmdPing(c *Context, args [][]byte) (protocol.Value, error) {
	switch len(args) {
	case 0:
		return protocol.SimpleString("PONG"), nil
	case 1:
		return protocol.BulkString(args[0]), nil
	}
	return protocol.Value{}, ErrWrongArity("PING")
}

func cmdEcho(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.BulkString(args[0]), nil
}

// cmdQuit only acknowledges; the connection handler closes afterwards
func cmdQuit(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.SimpleString("OK"), nil
}

// cmdConfig handles CONFIG GET <parameter>... Parameters may be glob
// patterns. A parameter that names nothing known is an error.
func cmdConfig(c *Context, args [][]byte) (protocol.Value, error) {
	sub := string(args[0])
	if !strings.EqualFold(sub, "GET") {
		return protocol.Value{}, errorf("unknown subcommand '%s'. Try CONFIG HELP.", sub)
	}

	seen := make(map[string]bool)
	var out []protocol.Value
	for _, arg := range args[1:] {
		pattern := strings.ToLower(string(arg))
		matched := false
		for _, name := range configParams {
			if !storage.Match(pattern, name) {
				continue
			}
			value, ok := c.config.ConfigGet(name)
			if !ok {
				continue
			}
			matched = true
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, protocol.BulkStringFromString(name), protocol.BulkStringFromString(value))
		}
		if !matched {
			return protocol.Value{}, errorf("unknown config parameter '%s'", string(arg))
		}
	}
	return protocol.Array(out...), nil
}
