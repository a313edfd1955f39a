// Package cssref scans stylesheet text for embedded URL references and
// rewrites external ones in place. Only the url(...) call syntax and quoted
// @import forms are recognized; this is deliberately not a CSS parser.
package cssref

import "strings"

// quoteKind records how a reference token was written in the source text.
type quoteKind int

const (
	bareToken quoteKind = iota
	singleQuoted
	doubleQuoted
)

// urlToken is one reference found in the source text. start and end address
// the token itself (quotes excluded) as byte offsets into the original text,
// so replacements can be spliced without touching surrounding syntax.
type urlToken struct {
	start int
	end   int
	raw   string
	quote quoteKind
}

// scanTokens returns every url(...) and quoted @import reference in text.
// Token spans never overlap: @import url(...) is only reported by the
// url(...) scan, since the import scan requires a quoted string.
func scanTokens(text string) []urlToken {
	tokens := scanURLCalls(text)
	return append(tokens, scanImports(text)...)
}

// scanURLCalls finds url( <token> ) expressions where the token is
// single-quoted, double-quoted, or bare (terminated by the closing paren).
func scanURLCalls(text string) []urlToken {
	var tokens []urlToken

	for i := 0; i+4 <= len(text); {
		if !matchesURLCall(text, i) {
			i++
			continue
		}

		j := i + 4
		for j < len(text) && isSpaceByte(text[j]) {
			j++
		}
		if j >= len(text) {
			break
		}

		switch text[j] {
		case '\'', '"':
			quoteByte := text[j]
			closing := strings.IndexByte(text[j+1:], quoteByte)
			if closing < 0 {
				return tokens
			}
			start := j + 1
			end := start + closing
			if end > start {
				kind := singleQuoted
				if quoteByte == '"' {
					kind = doubleQuoted
				}
				tokens = append(tokens, urlToken{start: start, end: end, raw: text[start:end], quote: kind})
			}
			i = end + 1

		default:
			closing := strings.IndexByte(text[j:], ')')
			if closing < 0 {
				return tokens
			}
			raw := strings.TrimRight(text[j:j+closing], " \t\r\n")
			if raw != "" {
				tokens = append(tokens, urlToken{start: j, end: j + len(raw), raw: raw, quote: bareToken})
			}
			i = j + closing + 1
		}
	}

	return tokens
}

// scanImports finds @import "x" and @import 'x' references.
func scanImports(text string) []urlToken {
	var tokens []urlToken

	for i := 0; i+8 <= len(text); {
		if !matchesImport(text, i) {
			i++
			continue
		}

		j := i + 7
		spaces := 0
		for j < len(text) && isSpaceByte(text[j]) {
			j++
			spaces++
		}
		if spaces == 0 || j >= len(text) || (text[j] != '\'' && text[j] != '"') {
			i = j
			continue
		}

		quoteByte := text[j]
		closing := strings.IndexByte(text[j+1:], quoteByte)
		if closing < 0 {
			return tokens
		}
		start := j + 1
		end := start + closing
		if end > start {
			kind := singleQuoted
			if quoteByte == '"' {
				kind = doubleQuoted
			}
			tokens = append(tokens, urlToken{start: start, end: end, raw: text[start:end], quote: kind})
		}
		i = end + 1
	}

	return tokens
}

// matchesURLCall reports whether text[i:] begins a url( call that is not the
// tail of a longer identifier.
func matchesURLCall(text string, i int) bool {
	if i > 0 && isIdentByte(text[i-1]) {
		return false
	}
	return text[i]|0x20 == 'u' &&
		text[i+1]|0x20 == 'r' &&
		text[i+2]|0x20 == 'l' &&
		text[i+3] == '('
}

// matchesImport reports whether text[i:] begins an @import at-rule.
func matchesImport(text string, i int) bool {
	if text[i] != '@' {
		return false
	}
	const keyword = "import"
	for k := 0; k < len(keyword); k++ {
		if text[i+1+k]|0x20 != keyword[k] {
			return false
		}
	}
	return true
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isIdentByte(b byte) bool {
	return b == '-' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
