// Package protocol implements the Redis Serialization Protocol (RESP2)
// used by the server to read requests and write replies.
//
// Parse is length-driven: it consumes exactly one value from a buffer and
// reports whether the buffer was merely too short (ErrIncomplete) or
// malformed (ErrProtocol). Reader builds a streaming decoder on top of it.
//
// Basic usage:
//
//	reader := protocol.NewReader(conn)
//	for {
//		value, err := reader.ReadNext()
//		if err != nil {
//			break
//		}
//		// Process value
//	}
//
// The package supports all RESP2 data types:
//   - Simple Strings
//   - Errors
//   - Integers
//   - Bulk Strings
//   - Arrays
//   - Null bulk strings and null arrays
package protocol
