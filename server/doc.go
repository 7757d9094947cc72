// Package server provides the RESP connection handler and accept loop.
//
// Each accepted connection gets its own goroutine, a ULID client ID and a
// streaming protocol reader. Requests are evaluated in order by a
// command.Dispatcher:
//   - command failures are written back as error replies and the
//     connection stays open
//   - malformed protocol input closes the connection without a reply
//   - QUIT replies OK and then closes
//
// The server is compatible with Redis clients like github.com/redis/go-redis.
package server
