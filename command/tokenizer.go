package command

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// token is a whitespace delimited word along with its byte offset in the tokenized text
type token struct {
	text   string
	offset int
}

// tokenizer splits text in whitespace delimited tokens while keeping track of offsets so that the
// free-form remainder of a command (a question, for instance) keeps its original formatting
type tokenizer struct {
	text string
	pos  int
}

func newTokenizer(text string) *tokenizer {
	return &tokenizer{text: text}
}

// next returns the next token and advances past it
func (t *tokenizer) next() (tok token, ok bool) {
	tok, end, ok := t.scan()
	if ok {
		t.pos = end
	}

	return tok, ok
}

// peek returns the next token without advancing
func (t *tokenizer) peek() (tok token, ok bool) {
	tok, _, ok = t.scan()
	return tok, ok
}

// rest returns the untokenized remainder trimmed of surrounding whitespace
func (t *tokenizer) rest() string {
	return strings.TrimSpace(t.text[t.pos:])
}

func (t *tokenizer) scan() (tok token, end int, ok bool) {
	start := t.pos
	for start < len(t.text) {
		r, size := utf8.DecodeRuneInString(t.text[start:])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}

	if start >= len(t.text) {
		return tok, start, false
	}

	end = start
	for end < len(t.text) {
		r, size := utf8.DecodeRuneInString(t.text[end:])
		if unicode.IsSpace(r) {
			break
		}
		end += size
	}

	return token{text: t.text[start:end], offset: start}, end, true
}
