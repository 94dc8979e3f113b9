package pkgspec

import "strings"

// DefaultTag is the dist-tag used when a token carries no version spec.
const DefaultTag = "latest"

// Token is one parsed package reference. It is immutable once parsed.
type Token struct {
	Scope    string // without the leading "@"; empty when unscoped
	Name     string
	Spec     string // as written; empty when omitted
	DeepPath string // without the leading "/"; empty when omitted
}

// QualifiedName returns "@scope/name" or "name".
func (t Token) QualifiedName() string {
	if t.Scope == "" {
		return t.Name
	}
	return "@" + t.Scope + "/" + t.Name
}

// VersionSpec returns the spec to resolve, defaulting to DefaultTag.
func (t Token) VersionSpec() string {
	if t.Spec == "" {
		return DefaultTag
	}
	return t.Spec
}

// ImportPath returns the module specifier for the token: the qualified name
// followed by the deep path, if any.
func (t Token) ImportPath() string {
	if t.DeepPath == "" {
		return t.QualifiedName()
	}
	return t.QualifiedName() + "/" + t.DeepPath
}

// String renders the token back in request syntax.
func (t Token) String() string {
	var b strings.Builder
	b.WriteString(t.QualifiedName())
	if t.Spec != "" {
		b.WriteByte('@')
		b.WriteString(t.Spec)
	}
	if t.DeepPath != "" {
		b.WriteByte('/')
		b.WriteString(t.DeepPath)
	}
	return b.String()
}
