package protocol

import (
	"bufio"
	"io"
)

// Writer buffers RESP replies for a connection. Encoding is done by
// AppendValue, so WriteValue and Serialize always agree.
type Writer struct {
	bw      *bufio.Writer
	scratch []byte
}

// NewWriter creates a new RESP protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteValue encodes v into the buffer
func (w *Writer) WriteValue(v Value) error {
	w.scratch = AppendValue(w.scratch[:0], v)
	_, err := w.bw.Write(w.scratch)
	return err
}

// WriteCommand writes a command as an array of bulk strings
func (w *Writer) WriteCommand(name string, args ...string) error {
	return w.WriteValue(NewCommand(name, args...).Value())
}

// Flush writes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
