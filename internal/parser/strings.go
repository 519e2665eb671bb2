package parser

import (
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jward/thicket/internal/tree"
)

// splitString separates a string literal into its prefix letters and the
// text between the quotes.
func splitString(raw string) (prefix, body string) {
	i := strings.IndexAny(raw, `'"`)
	if i < 0 {
		return "", raw
	}
	prefix, rest := raw[:i], raw[i:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(rest, q) && len(rest) >= 2*len(q) && strings.HasSuffix(rest, q) {
			return prefix, rest[len(q) : len(rest)-len(q)]
		}
	}
	return prefix, rest
}

// unescape interprets Python backslash escapes. Unknown escapes are kept
// verbatim, as Python does.
func unescape(s string, bytes bool) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 == len(s) {
			sb.WriteByte(ch)
			continue
		}
		i++
		switch e := s[i]; e {
		case '\n':
		case '\\', '\'', '"':
			sb.WriteByte(e)
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			v, _ := strconv.ParseUint(s[i:j], 8, 32)
			writeCode(&sb, rune(v), bytes)
			i = j - 1
		case 'x':
			if v, ok := hexDigits(s, i+1, 2); ok {
				writeCode(&sb, rune(v), bytes)
				i += 2
				continue
			}
			sb.WriteString(`\x`)
		case 'u', 'U':
			width := 4
			if e == 'U' {
				width = 8
			}
			if v, ok := hexDigits(s, i+1, width); !bytes && ok {
				sb.WriteRune(rune(v))
				i += width
				continue
			}
			sb.WriteByte('\\')
			sb.WriteByte(e)
		default:
			sb.WriteByte('\\')
			sb.WriteByte(e)
		}
	}
	return sb.String()
}

func hexDigits(s string, start, n int) (uint64, bool) {
	if start+n > len(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[start:start+n], 16, 32)
	return v, err == nil
}

func writeCode(sb *strings.Builder, r rune, bytes bool) {
	if bytes || r < utf8.RuneSelf {
		sb.WriteByte(byte(r))
		return
	}
	sb.WriteRune(r)
}

// parseNumber converts an integer or float literal. Complex literals are
// not representable and report false.
func parseNumber(text string) (tree.Constant, bool) {
	if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
		return tree.Constant{}, false
	}
	lower := strings.ToLower(text)
	isFloat := !strings.HasPrefix(lower, "0x") && strings.ContainsAny(lower, ".e")
	if !isFloat {
		if v, err := strconv.ParseInt(text, 0, 64); err == nil {
			return tree.Int(v), true
		}
		if len(text) > 1 && text[0] == '0' && strings.Trim(text, "0_") == "" {
			return tree.Int(0), true
		}
		if z, ok := new(big.Int).SetString(text, 0); ok {
			return tree.BigInt(z), true
		}
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil {
		return tree.Constant{}, false
	}
	return tree.Float(f), true
}
