package command

import (
	"context"
	"errors"
	"sort"

	"github.com/raniellyferreira/redis-inmemory-server/lua"
	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// Logger is the logging interface used by the dispatcher
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Context is what a handler sees while the store lock is held
type Context struct {
	ctx     context.Context
	tx      *storage.Tx
	config  ConfigSource
	scripts *lua.Engine
	d       *Dispatcher
}

type handlerFunc func(c *Context, args [][]byte) (protocol.Value, error)

// spec describes one command. Arity follows the Redis convention: it counts
// the command name, positive means exact and negative means at least.
type spec struct {
	name     string
	arity    int
	noScript bool
	handler  handlerFunc
}

func (s *spec) arityOK(argc int) bool {
	n := argc + 1
	if s.arity >= 0 {
		return n == s.arity
	}
	return n >= -s.arity
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithConfig sets the source for CONFIG GET
func WithConfig(cfg ConfigSource) Option {
	return func(d *Dispatcher) {
		if cfg != nil {
			d.config = cfg
		}
	}
}

// WithScripts sets the Lua engine used by EVAL and friends
func WithScripts(engine *lua.Engine) Option {
	return func(d *Dispatcher) {
		if engine != nil {
			d.scripts = engine
		}
	}
}

// WithLogger sets the dispatcher logger
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher maps requests to handlers and runs each one with the store
// lock held for its whole evaluation.
type Dispatcher struct {
	store    *storage.Store
	config   ConfigSource
	scripts  *lua.Engine
	logger   Logger
	commands map[string]*spec
}

// New creates a dispatcher over store
func New(store *storage.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		config:   StaticConfig{},
		scripts:  lua.NewEngine(),
		logger:   nopLogger{},
		commands: make(map[string]*spec),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, group := range [][]*spec{keyspaceCommands(), listCommands(), serverCommands(), scriptingCommands()} {
		for _, s := range group {
			d.commands[s.name] = s
		}
	}
	return d
}

// Commands returns the registered command names, sorted
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a registered command
func (d *Dispatcher) Known(name string) bool {
	_, ok := d.commands[name]
	return ok
}

// Dispatch evaluates one request value and returns the reply.
// Failures are returned as error replies.
func (d *Dispatcher) Dispatch(ctx context.Context, v protocol.Value) protocol.Value {
	cmd, err := protocol.ParseCommand(v)
	if err != nil {
		return ErrorReply(err)
	}
	return d.Do(ctx, cmd)
}

// Do runs a parsed command and converts any failure into an error reply
func (d *Dispatcher) Do(ctx context.Context, cmd *protocol.Command) protocol.Value {
	reply, err := d.Execute(ctx, cmd)
	if err != nil {
		return ErrorReply(err)
	}
	return reply
}

// Execute runs a parsed command. Command failures are returned as errors.
func (d *Dispatcher) Execute(ctx context.Context, cmd *protocol.Command) (protocol.Value, error) {
	s, args, err := d.resolve(cmd)
	if err != nil {
		return protocol.Value{}, err
	}

	var reply protocol.Value
	err = d.store.Exec(func(tx *storage.Tx) error {
		c := &Context{ctx: ctx, tx: tx, config: d.config, scripts: d.scripts, d: d}
		var herr error
		reply, herr = s.handler(c, args)
		return herr
	})
	if err != nil {
		if errors.Is(err, storage.ErrPanic) {
			d.logger.Error("command panicked", "command", cmd.Name, "error", err)
		} else if _, ok := err.(*Error); !ok {
			d.logger.Debug("command failed", "command", cmd.Name, "error", err)
		}
		return protocol.Value{}, err
	}
	return reply, nil
}

// resolve looks up the handler and validates argument count and kinds
func (d *Dispatcher) resolve(cmd *protocol.Command) (*spec, [][]byte, error) {
	s, ok := d.commands[cmd.Name]
	if !ok {
		return nil, nil, ErrUnknownCommand(cmd.Name)
	}
	if !s.arityOK(len(cmd.Args)) {
		return nil, nil, ErrWrongArity(s.name)
	}

	args := make([][]byte, len(cmd.Args))
	for i, arg := range cmd.Args {
		if arg.IsNull || (arg.Type != protocol.TypeBulkString && arg.Type != protocol.TypeSimpleString) {
			return nil, nil, ErrWrongKind(s.name)
		}
		args[i] = arg.Data
	}
	return s, args, nil
}

// scriptExecutor runs redis.call commands on the transaction already held
// by the enclosing EVAL.
type scriptExecutor struct {
	c *Context
}

func (e scriptExecutor) Execute(cmd *protocol.Command) (protocol.Value, error) {
	s, args, err := e.c.d.resolve(cmd)
	if err != nil {
		return protocol.Value{}, err
	}
	if s.noScript {
		return protocol.Value{}, errNotInScripts
	}

	return s.handler(e.c, args)
}
