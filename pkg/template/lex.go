package template

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenOutput
	tokenTag
	tokenComment
)

// token is one lexical unit of a template: literal text or the trimmed body
// of a {{ }}, {% %} or {# #} delimiter pair.
type token struct {
	kind tokenKind
	val  string
	line int
}

var closers = map[byte]string{
	'{': "}}",
	'%': "%}",
	'#': "#}",
}

var kinds = map[byte]tokenKind{
	'{': tokenOutput,
	'%': tokenTag,
	'#': tokenComment,
}

// lex splits src into tokens. Delimiters do not nest; the first matching
// closer ends a tag.
func lex(name, src string) ([]token, error) {
	var tokens []token
	line := 1

	for len(src) > 0 {
		i := indexOpen(src)
		if i < 0 {
			tokens = append(tokens, token{kind: tokenText, val: src, line: line})
			break
		}
		if i > 0 {
			tokens = append(tokens, token{kind: tokenText, val: src[:i], line: line})
			line += strings.Count(src[:i], "\n")
			src = src[i:]
		}

		marker := src[1]
		end := strings.Index(src[2:], closers[marker])
		if end < 0 {
			return nil, &ParseError{Name: name, Line: line, Msg: fmt.Sprintf("unclosed %q", src[:2])}
		}

		body := src[2 : 2+end]
		tokens = append(tokens, token{kind: kinds[marker], val: strings.TrimSpace(body), line: line})

		consumed := 2 + end + 2
		line += strings.Count(src[:consumed], "\n")
		src = src[consumed:]
	}

	return tokens, nil
}

// indexOpen returns the index of the first "{{", "{%" or "{#" in s, or -1.
func indexOpen(s string) int {
	offset := 0
	for {
		i := strings.IndexByte(s[offset:], '{')
		if i < 0 {
			return -1
		}
		i += offset
		if i+1 < len(s) {
			if _, ok := closers[s[i+1]]; ok {
				return i
			}
		}
		offset = i + 1
		if offset >= len(s) {
			return -1
		}
	}
}
