package command

import (
	"strings"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

func scriptingCommands() []*spec {
	return []*spec{
		{name: "EVAL", arity: -3, noScript: true, handler: cmdEval},
		{name: "EVALSHA", arity: -3, noScript: true, handler: cmdEvalSHA},
		{name: "SCRIPT", arity: -2, noScript: true, handler: cmdScript},
	}
}

// splitKeys parses numkeys and splits the remaining arguments into KEYS and
// ARGV.
func splitKeys(args [][]byte) ([]string, []string, error) {
	numKeys, err := parseInt(args[0])
	if err != nil {
		return nil, nil, err
	}
	rest := args[1:]
	if numKeys < 0 {
		return nil, nil, errorf("Number of keys can't be negative")
	}
	if numKeys > int64(len(rest)) {
		return nil, nil, errorf("Number of keys can't be greater than number of args")
	}
	return toStrings(rest[:numKeys]), toStrings(rest[numKeys:]), nil
}

// cmdEval handles EVAL script numkeys [key ...] [arg ...]
func cmdEval(c *Context, args [][]byte) (protocol.Value, error) {
	keys, argv, err := splitKeys(args[1:])
	if err != nil {
		return protocol.Value{}, err
	}
	script := string(args[0])
	c.scripts.LoadScript(script)
	return c.scripts.Eval(c.ctx, scriptExecutor{c: c}, script, keys, argv)
}

// cmdEvalSHA handles EVALSHA sha1 numkeys [key ...] [arg ...]
func cmdEvalSHA(c *Context, args [][]byte) (protocol.Value, error) {
	keys, argv, err := splitKeys(args[1:])
	if err != nil {
		return protocol.Value{}, err
	}
	return c.scripts.EvalSHA(c.ctx, scriptExecutor{c: c}, string(args[0]), keys, argv)
}

// cmdScript handles SCRIPT LOAD|EXISTS|FLUSH
func cmdScript(c *Context, args [][]byte) (protocol.Value, error) {
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "LOAD":
		if len(args) != 2 {
			return protocol.Value{}, errorf("wrong number of arguments for 'script|load' command")
		}
		return protocol.BulkStringFromString(c.scripts.LoadScript(string(args[1]))), nil

	case "EXISTS":
		if len(args) < 2 {
			return protocol.Value{}, errorf("wrong number of arguments for 'script|exists' command")
		}
		found := c.scripts.ScriptExists(toStrings(args[1:])...)
		out := make([]protocol.Value, len(found))
		for i, ok := range found {
			if ok {
				out[i] = protocol.Integer(1)
			} else {
				out[i] = protocol.Integer(0)
			}
		}
		return protocol.Array(out...), nil

	case "FLUSH":
		// ASYNC and SYNC are accepted and behave the same
		if len(args) > 2 {
			return protocol.Value{}, errSyntax
		}
		if len(args) == 2 {
			mode := strings.ToUpper(string(args[1]))
			if mode != "ASYNC" && mode != "SYNC" {
				return protocol.Value{}, errSyntax
			}
		}
		c.scripts.ScriptFlush()
		return protocol.SimpleString("OK"), nil
	}
	return protocol.Value{}, errorf("unknown SCRIPT subcommand '%s'", string(args[0]))
}
