package pkgspec

import (
	"fmt"
	"strings"
	"unicode"

	"git.home.luguber.info/inful/packd/internal/foundation/errors"
)

// ErrMalformedRequest is returned for any request that does not match the
// token grammar.
var ErrMalformedRequest = errors.ValidationError("invalid request").Build()

const maxNameLength = 214

// SyntaxError describes where a token stopped matching the grammar.
type SyntaxError struct {
	Token  string
	Pos    int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("token %q at offset %d: %s", e.Token, e.Pos, e.Reason)
}

// Parse splits a raw request on "," and parses every token. Any malformed
// token fails the whole request with ErrMalformedRequest wrapping a
// *SyntaxError.
func Parse(raw string) ([]Token, error) {
	raw = strings.TrimPrefix(raw, "/")
	parts := strings.Split(raw, ",")
	tokens := make([]Token, 0, len(parts))
	for _, part := range parts {
		tok, err := ParseToken(part)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// ParseToken parses a single package token.
func ParseToken(s string) (Token, error) {
	p := &parser{src: s}
	tok, err := p.token()
	if err != nil {
		return Token{}, ErrMalformedRequest.
			WithCause(err).
			WithContext("token", s)
	}
	return tok, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) fail(reason string) error {
	return &SyntaxError{Token: p.src, Pos: p.pos, Reason: reason}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) accept(c byte) bool {
	if p.peek() == c && !p.eof() {
		p.pos++
		return true
	}
	return false
}

// token := [ "@" ident "/" ] ident [ "@" spec ] [ "/" deep ] EOF
func (p *parser) token() (Token, error) {
	var tok Token
	if p.eof() {
		return tok, p.fail("empty token")
	}

	if p.accept('@') {
		scope, err := p.ident("scope")
		if err != nil {
			return tok, err
		}
		if !p.accept('/') {
			return tok, p.fail("expected '/' after scope")
		}
		tok.Scope = scope
	}

	name, err := p.ident("name")
	if err != nil {
		return tok, err
	}
	tok.Name = name
	if len(tok.QualifiedName()) > maxNameLength {
		return tok, p.fail("name too long")
	}

	if p.accept('@') {
		spec, err := p.spec()
		if err != nil {
			return tok, err
		}
		tok.Spec = spec
	}

	if p.accept('/') {
		deep, err := p.deepPath()
		if err != nil {
			return tok, err
		}
		tok.DeepPath = deep
	}

	if !p.eof() {
		return tok, p.fail(fmt.Sprintf("unexpected %q", p.peek()))
	}
	return tok, nil
}

// ident := identStart { identChar }
func (p *parser) ident(what string) (string, error) {
	start := p.pos
	for !p.eof() && isIdentChar(p.peek()) {
		p.pos++
	}
	if p.pos == start {
		return "", p.fail("expected " + what)
	}
	id := p.src[start:p.pos]
	if id[0] == '.' || id[0] == '_' {
		p.pos = start
		return "", p.fail(what + " cannot start with '.' or '_'")
	}
	return id, nil
}

// spec := specChar { specChar } ; anything but '/' and '@'
func (p *parser) spec() (string, error) {
	start := p.pos
	for !p.eof() && p.peek() != '/' && p.peek() != '@' {
		p.pos++
	}
	spec := p.src[start:p.pos]
	if strings.TrimSpace(spec) == "" {
		p.pos = start
		return "", p.fail("expected version spec")
	}
	if p.peek() == '@' {
		return "", p.fail("unexpected '@' in version spec")
	}
	return spec, nil
}

// deep := segment { "/" segment } ; no whitespace, no empty or ".." segments
func (p *parser) deepPath() (string, error) {
	start := p.pos
	deep := p.src[start:]
	if deep == "" {
		return "", p.fail("expected path after '/'")
	}
	for i, r := range deep {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			p.pos = start + i
			return "", p.fail("whitespace in path")
		}
	}
	for _, seg := range strings.Split(deep, "/") {
		if seg == "" || seg == ".." || seg == "." {
			return "", p.fail("invalid path segment")
		}
	}
	p.pos = len(p.src)
	return deep, nil
}

// isIdentChar reports the URL-safe characters npm allows in names.
func isIdentChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
