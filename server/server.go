package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/raniellyferreira/redis-inmemory-server/command"
	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

// ErrServerClosed is returned by Start after Stop
var ErrServerClosed = errors.New("server closed")

// Logger is the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector receives per-connection and per-command events
type MetricsCollector interface {
	RecordCommandProcessed(cmd string, duration time.Duration)
	RecordError(errorType string)
	RecordConnectionOpened()
	RecordConnectionClosed()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) RecordCommandProcessed(string, time.Duration) {}
func (nopMetrics) RecordError(string)                           {}
func (nopMetrics) RecordConnectionOpened()                      {}
func (nopMetrics) RecordConnectionClosed()                      {}

// Option configures a Server
type Option func(*Server)

// WithIdleTimeout closes connections that send nothing for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithLogger sets the server logger
func WithLogger(logger Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m MetricsCollector) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Server accepts RESP connections and runs each one on its own goroutine
type Server struct {
	dispatcher *command.Dispatcher

	// Server configuration
	addr        string
	idleTimeout time.Duration
	logger      Logger
	metrics     MetricsCollector

	// Connection management
	mu       sync.Mutex
	listener net.Listener
	clients  *xsync.MapOf[string, *Client]
	closed   bool

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Counters
	connCount    atomic.Int64
	commandCount atomic.Int64
	errorCount   atomic.Int64
}

// Client is one connected peer
type Client struct {
	id     string
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
	server *Server

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewServer creates a server that evaluates requests with dispatcher
func NewServer(addr string, dispatcher *command.Dispatcher, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		dispatcher: dispatcher,
		addr:       addr,
		logger:     nopLogger{},
		metrics:    nopMetrics{},
		clients:    xsync.NewMapOf[string, *Client](),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and starts accepting connections in the
// background. A bind failure is returned to the caller.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.listener != nil {
		return fmt.Errorf("server already listening on %s", s.listener.Addr())
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.logger.Info("listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptConnections(listener)

	return nil
}

// Stop closes the listener and every client, then waits for their
// goroutines to finish. It is safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	s.cancel()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	s.clients.Range(func(_ string, client *Client) bool {
		client.Close()
		return true
	})

	s.wg.Wait()
	s.logger.Info("server stopped")
	return err
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stats returns server statistics
func (s *Server) Stats() map[string]interface{} {
	return map[string]interface{}{
		"connected_clients": s.clients.Size(),
		"total_commands":    s.commandCount.Load(),
		"total_errors":      s.errorCount.Load(),
		"total_connections": s.connCount.Load(),
	}
}

// ClientIDs returns the IDs of the currently connected clients
func (s *Server) ClientIDs() []string {
	ids := make([]string, 0, s.clients.Size())
	s.clients.Range(func(id string, _ *Client) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// acceptConnections accepts new client connections until the listener closes
func (s *Server) acceptConnections(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.handleNewClient(conn)
	}
}

// handleNewClient registers a connection and starts its goroutine
func (s *Server) handleNewClient(conn net.Conn) {
	s.connCount.Add(1)
	s.metrics.RecordConnectionOpened()

	ctx, cancel := context.WithCancel(s.ctx)
	writer := protocol.NewWriter(conn)
	client := &Client{
		id:     ulid.Make().String(),
		conn:   conn,
		reader: protocol.NewReader(&flushingReader{conn: conn, writer: writer}),
		writer: writer,
		server: s,
		ctx:    ctx,
		cancel: cancel,
	}

	s.clients.Store(client.id, client)
	s.logger.Debug("client connected", "client", client.id, "remote", conn.RemoteAddr().String())

	s.wg.Add(1)
	go client.handle()

	// Stop may have ranged over the registry before this client was added
	if s.ctx.Err() != nil {
		client.Close()
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() string {
	return c.id
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
		c.server.clients.Delete(c.id)
		c.server.metrics.RecordConnectionClosed()
	})
}

// flushingReader flushes pending replies before every read from the
// connection, so replies go out whenever the reader is about to wait for
// input and pipelined replies are batched otherwise.
type flushingReader struct {
	conn   net.Conn
	writer *protocol.Writer
}

func (f *flushingReader) Read(p []byte) (int, error) {
	if err := f.writer.Flush(); err != nil {
		return 0, err
	}
	return f.conn.Read(p)
}

// handle reads one request at a time, evaluates it and writes the reply.
// A frame that fails to parse ends the connection, but replies to the
// requests before it are still delivered.
func (c *Client) handle() {
	defer c.server.wg.Done()
	defer c.Close()

	for {
		if c.server.idleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.server.idleTimeout))
		}

		value, err := c.reader.ReadNext()
		if err != nil {
			if errors.Is(err, protocol.ErrProtocol) {
				_ = c.writer.Flush()
			}
			c.readFailed(err)
			return
		}

		reply, name := c.execute(value)

		if err := c.writer.WriteValue(reply); err != nil {
			c.server.logger.Debug("write failed", "client", c.id, "error", err)
			return
		}

		if name == "QUIT" && !reply.IsError() {
			_ = c.writer.Flush()
			return
		}
	}
}

// execute evaluates one request and returns the reply plus the command name
func (c *Client) execute(value protocol.Value) (protocol.Value, string) {
	start := time.Now()
	c.server.commandCount.Add(1)

	var reply protocol.Value
	name := ""
	label := "unknown"

	cmd, err := protocol.ParseCommand(value)
	if err != nil {
		reply = command.ErrorReply(err)
	} else {
		name = cmd.Name
		if c.server.dispatcher.Known(name) {
			label = name
		}
		reply = c.server.dispatcher.Do(c.ctx, cmd)
	}

	if reply.IsError() {
		c.server.errorCount.Add(1)
		c.server.metrics.RecordError("command")
	}
	c.server.metrics.RecordCommandProcessed(label, time.Since(start))
	return reply, name
}

// readFailed logs why the read loop ended
func (c *Client) readFailed(err error) {
	var netErr net.Error

	switch {
	case errors.Is(err, io.EOF) || c.ctx.Err() != nil:
		c.server.logger.Debug("client disconnected", "client", c.id)
	case errors.Is(err, protocol.ErrProtocol):
		c.server.errorCount.Add(1)
		c.server.metrics.RecordError("protocol")
		c.server.logger.Info("closing connection on protocol error", "client", c.id, "error", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		c.server.logger.Debug("closing idle connection", "client", c.id)
	default:
		c.server.logger.Debug("read failed", "client", c.id, "error", err)
	}
}
