package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// PolicyKind is the operation a row policy restricts.
type PolicyKind int

const (
	PolicySelect PolicyKind = iota
)

// RowPolicies supplies the row filter of a table for the current user.
type RowPolicies interface {
	// Filter returns the policy predicate for the table combined with
	// combineWith, or combineWith itself when no policy applies. A nil
	// result means every row is visible.
	Filter(database, table string, kind PolicyKind, combineWith processor.Predicate) processor.Predicate
	// Fingerprint identifies the rows the policies let through. Two policy
	// sets with the same fingerprint must filter every table alike; the
	// empty fingerprint means nothing is filtered.
	Fingerprint() string
}

// StaticRowPolicies maps "database.table" to predicates that must all hold.
type StaticRowPolicies map[string][]processor.Predicate

func (s StaticRowPolicies) Filter(database, table string, _ PolicyKind, combineWith processor.Predicate) processor.Predicate {
	terms := s[database+"."+table]
	if len(terms) == 0 {
		return combineWith
	}
	and := append(processor.And{}, terms...)
	if combineWith != nil {
		and = append(and, combineWith)
	}
	return and
}

// Fingerprint lists the restricted tables in name order with their
// predicates in Go syntax, so literals of different types stay distinct.
func (s StaticRowPolicies) Fingerprint() string {
	names := make([]string, 0, len(s))
	for name, terms := range s {
		if len(terms) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "%q:%#v;", name, s[name])
	}
	return sb.String()
}

// Table is an in-memory table a plan can read from.
type Table struct {
	Database string
	Name     string
	Header   types.Header
	Blocks   []*column.Block
	// SortedBy is the order the blocks are stored in.
	SortedBy join.SortDescription
}

// FullName is "database.name".
func (t *Table) FullName() string { return t.Database + "." + t.Name }

// ReadTable starts a plan reading t. When policies restrict t, a row policy
// filter follows the read.
func ReadTable(t *Table, policies RowPolicies) (*QueryPlan, error) {
	read := NewReadFromChunksStep(t.Header, t.Blocks, nil, nil).WithSortedBy(t.SortedBy)
	read.SetDescription("ReadFromMemory (" + t.FullName() + ")")
	p := New()
	if err := p.AddStep(read); err != nil {
		return nil, err
	}
	if policies != nil {
		if err := ApplyRowPolicy(p, policies, t.Database, t.Name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ApplyRowPolicy adds the SELECT row policy of database.table, if any, on top
// of p.
func ApplyRowPolicy(p *QueryPlan, policies RowPolicies, database, table string) error {
	pred := policies.Filter(database, table, PolicySelect, nil)
	if pred == nil {
		return nil
	}
	step := NewFilterStep(p.OutputStream(), pred)
	step.SetDescription("Row policy filter")
	return p.AddStep(step)
}
