// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package frontend is the small hand-written lexer and recursive-descent
// parser that stands in for the external collaborator producing
// internal/ast.Program: the core pipeline (internal/ir onward) never cares
// how a Program was built, only that one exists, so this front end is kept
// deliberately minimal and direct rather than table-driven or generated.
package frontend

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gorse-io/vetra/internal/ast"
)

type tokKind int

const (
	tkEOF tokKind = iota
	tkIdent
	tkInt
	tkFloat
	tkString
	tkChar
	tkKeyword
	tkPunct
)

type token struct {
	kind tokKind
	text string
	pos  ast.Pos
}

var keywords = map[string]bool{
	"true": true, "false": true, "null": true,
	"if": true, "else": true, "elif": true, "while": true, "for": true,
	"foreach": true, "in": true, "break": true, "continue": true,
	"return": true, "match": true, "fn": true, "let": true, "const": true,
	"static": true, "class": true, "struct": true, "enum": true, "impl": true,
	"trait": true, "namespace": true, "use": true, "public": true,
	"private": true, "protected": true, "this": true, "self": true,
	"void": true, "new": true, "mut": true, "ref": true, "as": true,
	"sizeof": true, "defer": true, "type": true,
	"i8": true, "i16": true, "i32": true, "i64": true,
	"u8": true, "u16": true, "u32": true, "u64": true,
	"f32": true, "f64": true, "string": true, "bool": true, "char": true,
	"var": true, "never": true,
}

// puncts is tried longest-first so multi-char operators win over their
// single-char prefixes (e.g. "??" before "?", "<<=" before "<<" before "<").
var puncts = []string{
	"<<=", ">>=", "..=",
	"&&", "||", "==", "!=", "<=", ">=", "<<", ">>", "::", "=>", "->",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "++", "--", "??", "?.", "..",
	"(", ")", "{", "}", "[", "]", ";", ":", ",", ".", "?", "!", "#",
	"+", "-", "*", "/", "%", "&", "|", "^", "~", "<", ">", "=",
}

type lexer struct {
	src  string
	file string
	pos  int
	line int
	col  int
}

func newLexer(file, src string) *lexer {
	return &lexer{src: src, file: file, line: 1, col: 1}
}

func (l *lexer) curPos() ast.Pos { return ast.Pos{Line: l.line, Column: l.col, File: l.file} }

func (l *lexer) advanceRune() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r, true
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) skipTrivia() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advanceRune()
		case c == '/' && l.peekByte(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advanceRune()
			}
		case c == '/' && l.peekByte(1) == '*':
			l.advanceRune()
			l.advanceRune()
			for l.pos < len(l.src) && !(l.src[l.pos] == '*' && l.peekByte(1) == '/') {
				l.advanceRune()
			}
			l.advanceRune()
			l.advanceRune()
		default:
			return
		}
	}
}

func isIdentStart(r rune) bool { return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
func isIdentPart(r rune) bool  { return isIdentStart(r) || (r >= '0' && r <= '9') }
func isDigit(r rune) bool      { return r >= '0' && r <= '9' }

// lex tokenizes the whole source up front; the parser works off the slice
// with a cursor rather than re-invoking the lexer incrementally.
func lex(file, src string) ([]token, error) {
	l := newLexer(file, src)
	var toks []token
	for {
		l.skipTrivia()
		if l.pos >= len(l.src) {
			toks = append(toks, token{kind: tkEOF, pos: l.curPos()})
			return toks, nil
		}
		start := l.curPos()
		c := l.src[l.pos]

		switch {
		case c == '"':
			s, err := l.lexString()
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tkString, text: s, pos: start})
		case c == '\'':
			s, err := l.lexChar()
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tkChar, text: s, pos: start})
		case isDigit(rune(c)):
			text, isFloat := l.lexNumber()
			kind := tkInt
			if isFloat {
				kind = tkFloat
			}
			toks = append(toks, token{kind: kind, text: text, pos: start})
		case isIdentStart(rune(c)):
			text := l.lexIdent()
			kind := tkIdent
			if keywords[text] {
				kind = tkKeyword
			}
			toks = append(toks, token{kind: kind, text: text, pos: start})
		default:
			p, ok := l.lexPunct()
			if !ok {
				return nil, fmt.Errorf("%s:%d:%d: unexpected character %q", file, start.Line, start.Column, c)
			}
			toks = append(toks, token{kind: tkPunct, text: p, pos: start})
		}
	}
}

func (l *lexer) lexIdent() string {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
		l.col++
	}
	return l.src[start:l.pos]
}

func (l *lexer) lexNumber() (string, bool) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(rune(l.src[l.pos])) {
		l.advanceRune()
	}
	isFloat := false
	if l.peekByte(0) == '.' && isDigit(rune(l.peekByte(1))) {
		isFloat = true
		l.advanceRune()
		for l.pos < len(l.src) && isDigit(rune(l.src[l.pos])) {
			l.advanceRune()
		}
	}
	text := l.src[start:l.pos]
	// Optional numeric-literal type suffix (i32, u8, f64, ...); captured as
	// part of the token text and split off by the parser, mirroring how a
	// type-checking front end would classify the suffix against its own
	// integer/float type table instead of hardcoding it in the lexer.
	suffixStart := l.pos
	for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
		l.advanceRune()
	}
	suffix := l.src[suffixStart:l.pos]
	if suffix != "" {
		text += "#" + suffix
	}
	return text, isFloat
}

func (l *lexer) lexString() (string, error) {
	l.advanceRune() // opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return "", fmt.Errorf("unterminated string literal")
		}
		r, _ := l.advanceRune()
		if r == '"' {
			return sb.String(), nil
		}
		if r == '\\' {
			e, _ := l.advanceRune()
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				sb.WriteRune(e)
			}
			continue
		}
		sb.WriteRune(r)
	}
}

func (l *lexer) lexChar() (string, error) {
	l.advanceRune() // opening quote
	r, _ := l.advanceRune()
	if r == '\\' {
		e, _ := l.advanceRune()
		switch e {
		case 'n':
			r = '\n'
		case 't':
			r = '\t'
		case 'r':
			r = '\r'
		default:
			r = e
		}
	}
	closing, _ := l.advanceRune()
	if closing != '\'' {
		return "", fmt.Errorf("unterminated char literal")
	}
	return string(r), nil
}

func (l *lexer) lexPunct() (string, bool) {
	for _, p := range puncts {
		if strings.HasPrefix(l.src[l.pos:], p) {
			for range p {
				l.advanceRune()
			}
			return p, true
		}
	}
	return "", false
}

// splitNumSuffix separates a lexed numeric literal's digits from the
// optional type suffix the lexer appended after '#'.
func splitNumSuffix(text string) (digits, suffix string) {
	if i := strings.IndexByte(text, '#'); i >= 0 {
		return text[:i], text[i+1:]
	}
	return text, ""
}

func parseIntSuffix(suffix string) ast.Type {
	switch suffix {
	case "i8":
		return ast.Type{Kind: ast.TypeI8}
	case "i16":
		return ast.Type{Kind: ast.TypeI16}
	case "i32":
		return ast.Type{Kind: ast.TypeI32}
	case "i64":
		return ast.Type{Kind: ast.TypeI64}
	case "u8":
		return ast.Type{Kind: ast.TypeU8}
	case "u16":
		return ast.Type{Kind: ast.TypeU16}
	case "u32":
		return ast.Type{Kind: ast.TypeU32}
	case "u64":
		return ast.Type{Kind: ast.TypeU64}
	default:
		return ast.Type{Kind: ast.TypeInferred}
	}
}

func parseFloatSuffix(suffix string) ast.Type {
	switch suffix {
	case "f32":
		return ast.Type{Kind: ast.TypeF32}
	default:
		return ast.Type{Kind: ast.TypeInferred}
	}
}

func mustAtoi(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func mustAtof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
