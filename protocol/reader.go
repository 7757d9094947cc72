package protocol

import (
	"errors"
	"io"
)

const (
	// initialBufferSize is the starting capacity of the read buffer
	initialBufferSize = 4096

	// minReadSize is the least free space offered to each Read call
	minReadSize = 1024
)

// Reader is a streaming RESP reader. It accumulates bytes from the
// underlying reader and hands complete frames to Parse, so values may be
// split across any number of reads.
type Reader struct {
	rd    io.Reader
	buf   []byte
	start int
	end   int
}

// NewReader creates a new streaming RESP reader
func NewReader(r io.Reader) *Reader {
	return &Reader{
		rd:  r,
		buf: make([]byte, initialBufferSize),
	}
}

// ReadNext reads the next RESP value from the stream.
//
// It returns io.EOF when the stream ends on a frame boundary,
// io.ErrUnexpectedEOF when it ends inside a frame and an error matching
// ErrProtocol for malformed input.
func (r *Reader) ReadNext() (Value, error) {
	for {
		if r.end > r.start {
			v, n, err := Parse(r.buf[r.start:r.end])
			if err == nil {
				r.start += n
				if r.start == r.end {
					r.start, r.end = 0, 0
				}
				return v, nil
			}
			if !errors.Is(err, ErrIncomplete) {
				return Value{}, err
			}
		}

		if err := r.fill(); err != nil {
			if errors.Is(err, io.EOF) && r.end > r.start {
				return Value{}, io.ErrUnexpectedEOF
			}
			return Value{}, err
		}
	}
}

// fill reads at least one more byte into the buffer, compacting or growing
// it as needed.
func (r *Reader) fill() error {
	if r.start > 0 {
		copy(r.buf, r.buf[r.start:r.end])
		r.end -= r.start
		r.start = 0
	}

	if len(r.buf)-r.end < minReadSize {
		grown := make([]byte, len(r.buf)*2)
		copy(grown, r.buf[:r.end])
		r.buf = grown
	}

	for attempts := 0; attempts < 100; attempts++ {
		n, err := r.rd.Read(r.buf[r.end:])
		r.end += n
		if n > 0 {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return io.ErrNoProgress
}
