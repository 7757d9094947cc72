package rdb

import "errors"

var (
	errLZFLiteral  = errors.New("lzf: literal run past end of input")
	errLZFOverflow = errors.New("lzf: output exceeds declared length")
	errLZFBackref  = errors.New("lzf: back reference before start of output")
	errLZFTruncate = errors.New("lzf: truncated back reference")
	errLZFSize     = errors.New("lzf: output shorter than declared length")
)

// lzfDecompress expands an LZF stream into exactly rawLen bytes.
//
// Each control byte below 32 starts a literal run of ctrl+1 bytes. Anything
// else is a back reference: the top three bits are the match length minus 2
// (7 means an extra length byte follows) and the low five bits plus the next
// byte are the distance minus 1.
func lzfDecompress(in []byte, rawLen int) ([]byte, error) {
	out := make([]byte, 0, rawLen)
	i := 0

	for i < len(in) {
		ctrl := int(in[i])
		i++

		if ctrl < 32 {
			n := ctrl + 1
			if i+n > len(in) {
				return nil, errLZFLiteral
			}
			if len(out)+n > rawLen {
				return nil, errLZFOverflow
			}
			out = append(out, in[i:i+n]...)
			i += n
			continue
		}

		length := ctrl >> 5
		if length == 7 {
			if i >= len(in) {
				return nil, errLZFTruncate
			}
			length += int(in[i])
			i++
		}
		length += 2

		if i >= len(in) {
			return nil, errLZFTruncate
		}
		distance := (ctrl&0x1F)<<8 + int(in[i]) + 1
		i++

		if distance > len(out) {
			return nil, errLZFBackref
		}
		if len(out)+length > rawLen {
			return nil, errLZFOverflow
		}

		// Byte by byte: the source range may overlap what is being written
		from := len(out) - distance
		for k := 0; k < length; k++ {
			out = append(out, out[from+k])
		}
	}

	if len(out) != rawLen {
		return nil, errLZFSize
	}
	return out, nil
}
