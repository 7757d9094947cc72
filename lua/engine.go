package lua

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	lua "github.com/yuin/gopher-lua"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

// DefaultTimeout bounds a single script run
const DefaultTimeout = 5 * time.Second

// ErrNoScript is returned by EvalSHA for an unknown digest
var ErrNoScript = errors.New("NOSCRIPT No matching script. Please use EVAL.")

// maxReplyDepth caps table nesting when converting between Lua and RESP
const maxReplyDepth = 1000

var errDepthLimit = &ScriptError{Msg: "ERR reached lua stack limit"}

// ScriptError is a failure raised while running a script
type ScriptError struct {
	Msg string
}

func (e *ScriptError) Error() string {
	return e.Msg
}

// Executor runs a command issued by redis.call. Scripts run while the
// caller already holds the store lock, so implementations must not lock it
// again.
type Executor interface {
	Execute(cmd *protocol.Command) (protocol.Value, error)
}

// Option configures an Engine
type Option func(*Engine)

// WithTimeout sets the maximum run time of a script
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// Engine provides Redis-compatible Lua script execution
type Engine struct {
	scripts *xsync.MapOf[string, string]
	timeout time.Duration
}

// NewEngine creates a new Lua execution engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		scripts: xsync.NewMapOf[string, string](),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Eval runs script with KEYS and ARGV set, sending redis.call through exec
func (e *Engine) Eval(ctx context.Context, exec Executor, script string, keys, args []string) (protocol.Value, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	// no filesystem access from scripts
	for _, name := range []string{"dofile", "loadfile", "require", "module", "package"} {
		L.SetGlobal(name, lua.LNil)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	L.SetContext(ctx)

	e.setupRedisAPI(L, exec, keys, args)

	fn, err := L.LoadString(script)
	if err != nil {
		return protocol.Value{}, &ScriptError{Msg: "ERR Error compiling script: " + firstLine(err.Error())}
	}

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		if ctx.Err() != nil {
			return protocol.Value{}, &ScriptError{Msg: "ERR Error running script: execution exceeded " + e.timeout.String()}
		}
		return protocol.Value{}, &ScriptError{Msg: "ERR Error running script: " + firstLine(err.Error())}
	}

	return fromLua(L.Get(-1), 0)
}

// EvalSHA runs a script previously registered with LoadScript or Eval
func (e *Engine) EvalSHA(ctx context.Context, exec Executor, digest string, keys, args []string) (protocol.Value, error) {
	script, ok := e.scripts.Load(strings.ToLower(digest))
	if !ok {
		return protocol.Value{}, ErrNoScript
	}
	return e.Eval(ctx, exec, script, keys, args)
}

// LoadScript caches a script and returns its SHA1 digest
func (e *Engine) LoadScript(script string) string {
	digest := Digest(script)
	e.scripts.Store(digest, script)
	return digest
}

// ScriptExists reports, per digest, whether the script is cached
func (e *Engine) ScriptExists(digests ...string) []bool {
	results := make([]bool, len(digests))
	for i, digest := range digests {
		_, results[i] = e.scripts.Load(strings.ToLower(digest))
	}
	return results
}

// ScriptFlush removes all cached scripts
func (e *Engine) ScriptFlush() {
	e.scripts.Clear()
}

// Digest returns the hex SHA1 of a script
func Digest(script string) string {
	sum := sha1.Sum([]byte(script))
	return hex.EncodeToString(sum[:])
}

// setupRedisAPI installs KEYS, ARGV and the redis table
func (e *Engine) setupRedisAPI(L *lua.LState, exec Executor, keys, args []string) {
	keysTable := L.NewTable()
	for i, key := range keys {
		keysTable.RawSetInt(i+1, lua.LString(key))
	}
	L.SetGlobal("KEYS", keysTable)

	argvTable := L.NewTable()
	for i, arg := range args {
		argvTable.RawSetInt(i+1, lua.LString(arg))
	}
	L.SetGlobal("ARGV", argvTable)

	redisTable := L.NewTable()
	L.SetFuncs(redisTable, map[string]lua.LGFunction{
		"call": func(L *lua.LState) int {
			return redisCall(L, exec, true)
		},
		"pcall": func(L *lua.LState) int {
			return redisCall(L, exec, false)
		},
		"status_reply": func(L *lua.LState) int {
			t := L.NewTable()
			t.RawSetString("ok", lua.LString(L.CheckString(1)))
			L.Push(t)
			return 1
		},
		"error_reply": func(L *lua.LState) int {
			t := L.NewTable()
			t.RawSetString("err", lua.LString(L.CheckString(1)))
			L.Push(t)
			return 1
		},
		"sha1hex": func(L *lua.LState) int {
			L.Push(lua.LString(Digest(L.CheckString(1))))
			return 1
		},
	})
	L.SetGlobal("redis", redisTable)
}

// redisCall runs one command. With raise set a command error becomes a Lua
// error, otherwise it is returned as an {err=...} table.
func redisCall(L *lua.LState, exec Executor, raise bool) int {
	argc := L.GetTop()
	if argc == 0 {
		return failCall(L, raise, "ERR Please specify at least one argument for this redis lib call")
	}

	args := make([]string, argc)
	for i := 1; i <= argc; i++ {
		switch v := L.Get(i).(type) {
		case lua.LString:
			args[i-1] = string(v)
		case lua.LNumber:
			args[i-1] = v.String()
		default:
			return failCall(L, raise, "ERR Lua redis lib command arguments must be strings or integers")
		}
	}

	reply, err := exec.Execute(protocol.NewCommand(args[0], args[1:]...))
	if err != nil {
		return failCall(L, raise, err.Error())
	}
	if reply.IsError() && raise {
		L.RaiseError("%s", reply.ErrorMsg())
		return 0
	}

	lv, ok := toLua(L, reply, 0)
	if !ok {
		return failCall(L, raise, errDepthLimit.Msg)
	}
	L.Push(lv)
	return 1
}

func failCall(L *lua.LState, raise bool, msg string) int {
	if raise {
		L.RaiseError("%s", msg)
		return 0
	}
	t := L.NewTable()
	t.RawSetString("err", lua.LString(msg))
	L.Push(t)
	return 1
}

// toLua converts a reply using the Redis conversion rules. It reports
// false when arrays nest deeper than maxReplyDepth.
func toLua(L *lua.LState, v protocol.Value, depth int) (lua.LValue, bool) {
	if depth > maxReplyDepth {
		return lua.LNil, false
	}
	if v.IsNull {
		return lua.LFalse, true
	}

	switch v.Type {
	case protocol.TypeInteger:
		return lua.LNumber(v.Integer), true
	case protocol.TypeBulkString:
		return lua.LString(v.Data), true
	case protocol.TypeSimpleString:
		t := L.NewTable()
		t.RawSetString("ok", lua.LString(v.Data))
		return t, true
	case protocol.TypeError:
		t := L.NewTable()
		t.RawSetString("err", lua.LString(v.Data))
		return t, true
	case protocol.TypeArray:
		t := L.CreateTable(len(v.Array), 0)
		for i, item := range v.Array {
			lv, ok := toLua(L, item, depth+1)
			if !ok {
				return lua.LNil, false
			}
			t.RawSetInt(i+1, lv)
		}
		return t, true
	default:
		return lua.LNil, true
	}
}

// fromLua converts a script result using the Redis conversion rules.
// Arrays stop at the first nil, numbers are truncated to integers.
// Tables nested deeper than maxReplyDepth, including a table holding
// itself, fail with errDepthLimit.
func fromLua(lv lua.LValue, depth int) (protocol.Value, error) {
	if depth > maxReplyDepth {
		return protocol.Value{}, errDepthLimit
	}

	switch v := lv.(type) {
	case lua.LBool:
		if v {
			return protocol.Integer(1), nil
		}
		return protocol.NullBulkString(), nil
	case lua.LString:
		return protocol.BulkStringFromString(string(v)), nil
	case lua.LNumber:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return protocol.NullBulkString(), nil
		}
		return protocol.Integer(int64(f)), nil
	case *lua.LTable:
		if errMsg, ok := v.RawGetString("err").(lua.LString); ok {
			return protocol.ErrorValue(string(errMsg)), nil
		}
		if status, ok := v.RawGetString("ok").(lua.LString); ok {
			return protocol.SimpleString(string(status)), nil
		}
		items := make([]protocol.Value, 0, v.Len())
		for i := 1; ; i++ {
			item := v.RawGetInt(i)
			if item == lua.LNil {
				break
			}
			value, err := fromLua(item, depth+1)
			if err != nil {
				return protocol.Value{}, err
			}
			items = append(items, value)
		}
		return protocol.Array(items...), nil
	default:
		return protocol.NullBulkString(), nil
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// String describes the engine for logs
func (e *Engine) String() string {
	return fmt.Sprintf("lua engine (%d scripts, timeout %s)", e.scripts.Size(), e.timeout)
}
