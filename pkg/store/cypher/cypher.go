// Package cypher builds the parameterized statements the graph store runs.
//
// Values always travel in the parameter map. Only labels and relationship
// types are spliced into the query text, because Cypher cannot bind them,
// and both pass through QuoteIdentifier first.
package cypher

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"
)

// Statement is a query plus its parameters, ready for session.Run.
type Statement struct {
	Query  string
	Params map[string]any
}

// NeedsQuoting reports whether s must be wrapped in backticks to be used
// as a label or relationship type: it contains a character outside
// [A-Za-z0-9_], or it does not start with an ASCII letter.
func NeedsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case (c >= '0' && c <= '9') || c == '_':
			if i == 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// IsQuoted reports whether s is already a backtick-quoted identifier.
func IsQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`'
}

// UnquoteIdentifier reverses QuoteIdentifier. Unquoted input is returned
// as is.
func UnquoteIdentifier(s string) string {
	if !IsQuoted(s) {
		return s
	}
	return strings.ReplaceAll(s[1:len(s)-1], "``", "`")
}

// QuoteIdentifier returns s in a form that can be spliced into a query as
// a label or relationship type. Embedded backticks are doubled. Quoting an
// already quoted identifier is a no-op.
func QuoteIdentifier(s string) string {
	s = UnquoteIdentifier(s)
	if !NeedsQuoting(s) {
		return s
	}
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// DeleteAll removes every node and relationship.
func DeleteAll() Statement {
	return Statement{Query: "MATCH (n) DETACH DELETE n"}
}

// CreateNodes creates one node per row under a single label.
func CreateNodes(label common.EntityType, nodes []common.Node) Statement {
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, map[string]any{
			"name":        n.Name,
			"description": n.Description,
			"singular":    n.Singular,
		})
	}
	q := fmt.Sprintf(`UNWIND $rows AS row
CREATE (n:%s)
SET n.name = row.name, n.description = row.description, n.singular = row.singular
RETURN count(n) AS created`, QuoteIdentifier(string(label)))
	return Statement{Query: q, Params: map[string]any{"rows": rows}}
}

// CreateEdges creates one relationship per row, all of the same type, by
// matching both endpoints on their name. Rows whose endpoints do not match
// create nothing; the returned count reflects that.
func CreateEdges(relType string, edges []common.Edge) Statement {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		row := map[string]any{
			"source":      e.Source,
			"target":      e.Target,
			"description": e.Description,
			"chapter":     nil,
		}
		if e.Chapter != "" {
			row["chapter"] = e.Chapter
		}
		rows = append(rows, row)
	}
	q := fmt.Sprintf(`UNWIND $rows AS row
MATCH (a {name: row.source})
MATCH (b {name: row.target})
CREATE (a)-[r:%s]->(b)
SET r.description = row.description, r.chapter = row.chapter
RETURN count(r) AS created`, QuoteIdentifier(relType))
	return Statement{Query: q, Params: map[string]any{"rows": rows}}
}

// CountNodes counts nodes carrying any of labels.
func CountNodes(labels []common.EntityType) Statement {
	ls := make([]string, 0, len(labels))
	for _, l := range labels {
		ls = append(ls, string(l))
	}
	return Statement{
		Query: `MATCH (n)
WHERE any(l IN labels(n) WHERE l IN $labels)
RETURN count(n) AS count`,
		Params: map[string]any{"labels": ls},
	}
}

// Neighbors returns the relations touching any node named in names, each
// relation once, in the order the store produces them.
func Neighbors(names []string, limit int) Statement {
	return Statement{
		Query: `MATCH (start)-[r]-()
WHERE start.name IN $names
WITH DISTINCT r
RETURN startNode(r).name AS source,
       type(r) AS rel_type,
       r.description AS rel_desc,
       endNode(r).name AS target,
       endNode(r).description AS tgt_desc
LIMIT $limit`,
		Params: map[string]any{"names": names, "limit": limit},
	}
}

// NameIndexes creates a lookup index on name for every label. They are
// idempotent and safe to run on each rebuild.
func NameIndexes(labels []common.EntityType) []Statement {
	out := make([]Statement, 0, len(labels))
	for _, l := range labels {
		out = append(out, Statement{
			Query: fmt.Sprintf(
				"CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.name)",
				QuoteIdentifier(string(l)+"_name"),
				QuoteIdentifier(string(l)),
			),
		})
	}
	return out
}
