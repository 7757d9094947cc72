// Package command maps RESP requests to handlers over the store.
//
// Commands are looked up by their exact name in a closed registry. Each one
// runs with the store lock held for its whole evaluation, including any
// redis.call issued by a Lua script, so a command or script is atomic with
// respect to every other connection.
//
// Failures are returned as *Error and rendered as error replies; they never
// end the connection.
package command
