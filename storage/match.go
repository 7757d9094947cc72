package storage

// Match reports whether key matches a Redis glob pattern.
//
// Supported syntax: '*' any run of bytes, '?' one byte, '[abc]' and
// '[a-z]' classes (negated with '^'), '\' to escape the next byte.
// Unlike filepath.Match, '/' has no special meaning and a malformed class
// never errors; it just fails to match.
func Match(pattern, key string) bool {
	return matchAt(pattern, key, 0)
}

// maxMatchNesting bounds backtracking through consecutive stars
const maxMatchNesting = 1000

func matchAt(p, s string, nesting int) bool {
	if nesting > maxMatchNesting {
		return false
	}

	for len(p) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 1 && p[1] == '*' {
				p = p[1:]
			}
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if matchAt(p[1:], s[i:], nesting+1) {
					return true
				}
			}
			return false

		case '?':
			if len(s) == 0 {
				return false
			}
			s = s[1:]
			p = p[1:]

		case '[':
			if len(s) == 0 {
				return false
			}
			matched, rest, ok := matchClass(p[1:], s[0])
			if !ok || !matched {
				return false
			}
			s = s[1:]
			p = rest

		case '\\':
			if len(p) >= 2 {
				p = p[1:]
			}
			fallthrough

		default:
			if len(s) == 0 || p[0] != s[0] {
				return false
			}
			s = s[1:]
			p = p[1:]
		}
	}

	return len(s) == 0
}

// matchClass matches c against the class body starting after '['.
// It returns the pattern remaining after ']' and false for ok when the class
// is unterminated.
func matchClass(p string, c byte) (matched bool, rest string, ok bool) {
	negate := false
	if len(p) > 0 && p[0] == '^' {
		negate = true
		p = p[1:]
	}

	for len(p) > 0 {
		switch {
		case p[0] == ']':
			return matched != negate, p[1:], true

		case p[0] == '\\' && len(p) >= 2:
			if p[1] == c {
				matched = true
			}
			p = p[2:]

		case len(p) >= 3 && p[1] == '-' && p[2] != ']':
			lo, hi := p[0], p[2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			p = p[3:]

		default:
			if p[0] == c {
				matched = true
			}
			p = p[1:]
		}
	}

	return false, "", false
}
