package graph

import (
	"strings"
	"unicode"

	"github.com/OFFIS-RIT/bookgraph/pkg/store/cypher"

	"golang.org/x/text/unicode/norm"
)

// DefaultRelationType replaces relationship types that are empty after
// trimming.
const DefaultRelationType = "related_to"

// SanitizeName turns a canonical name into a graph identifier. The name is
// NFC-normalized, every rune that is not a letter or digit becomes '_',
// and leading and trailing underscores are removed. Runs of underscores
// are kept as they are.
//
// The result is empty only when name contains no letter or digit. The
// function is idempotent, and it is the only name transform used both when
// the graph is built and when a query is resolved.
func SanitizeName(name string) string {
	name = norm.NFC.String(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return strings.Trim(b.String(), "_")
}

// RelationType turns a free-form relationship type into a token that can
// be used as a relationship type. Whitespace runs become '_'. A token with
// characters outside [A-Za-z0-9_], or one that does not start with an
// ASCII letter, is backtick-quoted.
func RelationType(raw string) string {
	s := cypher.UnquoteIdentifier(strings.TrimSpace(raw))
	s = strings.Join(strings.Fields(s), "_")
	if s == "" {
		s = DefaultRelationType
	}
	return cypher.QuoteIdentifier(s)
}
