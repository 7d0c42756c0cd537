package preamble

import (
	"math/big"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/tdewolff/parse/v2/js"
)

// unquote decodes a quoted string token.
func unquote(data []byte) string {
	if len(data) < 2 {
		return string(data)
	}
	return unescape(string(data[1:len(data)-1]), false)
}

// templateSegment decodes one raw template part. Raw parts carry their
// delimiters: a leading ` or }, a trailing ` or ${.
func templateSegment(raw []byte) string {
	s := string(raw)
	if len(s) > 0 && (s[0] == '`' || s[0] == '}') {
		s = s[1:]
	}
	switch {
	case strings.HasSuffix(s, "${"):
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "`"):
		s = s[:len(s)-1]
	}
	return unescape(s, true)
}

func unescape(s string, template bool) string {
	if !strings.ContainsAny(s, "\\\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\r' && template {
			b.WriteByte('\n')
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			if i+1 < len(s) && '0' <= s[i+1] && s[i+1] <= '9' {
				b.WriteByte('0')
			} else {
				b.WriteByte(0)
			}
		case 'x':
			if i+2 < len(s) {
				if n, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
					b.WriteRune(rune(n))
					i += 2
					continue
				}
			}
			b.WriteByte(e)
		case 'u':
			r, n := unicodeEscape(s[i+1:])
			if n == 0 {
				b.WriteByte(e)
				continue
			}
			i += n
			if utf16.IsSurrogate(r) && i+2 < len(s) && s[i+1] == '\\' && s[i+2] == 'u' {
				if r2, n2 := unicodeEscape(s[i+3:]); n2 > 0 {
					if dec := utf16.DecodeRune(r, r2); dec != utf8.RuneError {
						r = dec
						i += 2 + n2
					}
				}
			}
			b.WriteRune(r)
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case '\n':
		default:
			if e >= utf8.RuneSelf {
				r, n := utf8.DecodeRuneInString(s[i:])
				if r == '\u2028' || r == '\u2029' {
					i += n - 1
					continue
				}
			}
			b.WriteByte(e)
		}
	}
	return b.String()
}

// unicodeEscape decodes the part of a \u escape after the u and returns
// the rune and the number of bytes consumed.
func unicodeEscape(s string) (rune, int) {
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 2 {
			return 0, 0
		}
		n, err := strconv.ParseUint(s[1:end], 16, 32)
		if err != nil || n > utf8.MaxRune {
			return 0, 0
		}
		return rune(n), end + 1
	}
	if len(s) < 4 {
		return 0, 0
	}
	n, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return 0, 0
	}
	return rune(n), 4
}

// parseNumber converts a numeric token to float64.
func parseNumber(tt js.TokenType, data []byte) (float64, bool) {
	s := strings.ReplaceAll(string(data), "_", "")
	s = strings.TrimSuffix(s, "n")
	switch tt {
	case js.HexadecimalToken, js.BinaryToken, js.OctalToken:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return f, true
		}
		return 0, false
	}
	return f, true
}

// UnquoteLiteral decodes a single-, double- or backtick-quoted literal with
// no interpolation. ok is false for anything else.
func UnquoteLiteral(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if q != '\'' && q != '"' && q != '`' || s[len(s)-1] != q {
		return "", false
	}
	inner := s[1 : len(s)-1]
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '\\':
			i++
		case q:
			return "", false
		case '$':
			if q == '`' && i+1 < len(inner) && inner[i+1] == '{' {
				return "", false
			}
		case '\n', '\r':
			if q != '`' {
				return "", false
			}
		}
	}
	return unescape(inner, q == '`'), true
}
