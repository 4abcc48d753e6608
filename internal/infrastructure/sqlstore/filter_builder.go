package sqlstore

import (
	"strings"
	"time"

	"github.com/martijn/vmorch/internal/api/util"
)

// storedTimeLayout is the layout filter values are normalized to. Its space
// separator sorts before the "T" of RFC3339 values, so comparisons hold for
// both layouts found in the jobs table.
const storedTimeLayout = "2006-01-02 15:04:05"

var timeColumns = map[string]bool{
	"started_at":  true,
	"finished_at": true,
}

var acceptedTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	storedTimeLayout,
	"2006-01-02 15:04",
	time.DateOnly,
}

var comparisons = map[util.QueryOperator]string{
	util.OpEq:  "=",
	util.OpNe:  "!=",
	util.OpGt:  ">",
	util.OpGte: ">=",
	util.OpLt:  "<",
	util.OpLte: "<=",
}

func normalizeTime(value string) string {
	for _, layout := range acceptedTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format(storedTimeLayout)
		}
	}
	return value
}

// selectBuilder accumulates a "?" placeholder query. Column names must be
// whitelisted by the caller; only values are bound.
type selectBuilder struct {
	sql  strings.Builder
	args []interface{}
}

func newSelect(base string) *selectBuilder {
	b := &selectBuilder{}
	b.sql.WriteString(base)
	return b
}

func (b *selectBuilder) where(filters []util.QueryFilter) *selectBuilder {
	for _, f := range filters {
		b.condition(f)
	}
	return b
}

func (b *selectBuilder) condition(f util.QueryFilter) {
	value := f.Value
	if s, ok := value.(string); ok && timeColumns[f.Field] {
		value = normalizeTime(s)
	}

	if op, ok := comparisons[f.Operator]; ok {
		b.sql.WriteString(" AND " + f.Field + " " + op + " ?")
		b.args = append(b.args, value)
		return
	}

	switch f.Operator {
	case util.OpIsNull:
		b.sql.WriteString(" AND " + f.Field + " IS NULL")
	case util.OpIsNotNull:
		b.sql.WriteString(" AND " + f.Field + " IS NOT NULL")
	case util.OpIn, util.OpNin:
		values, _ := f.Value.([]string)
		if len(values) == 0 {
			return
		}
		keyword := " IN ("
		if f.Operator == util.OpNin {
			keyword = " NOT IN ("
		}
		b.sql.WriteString(" AND " + f.Field + keyword)
		for i, v := range values {
			if i > 0 {
				b.sql.WriteString(", ")
			}
			b.sql.WriteByte('?')
			b.args = append(b.args, v)
		}
		b.sql.WriteByte(')')
	}
}

func (b *selectBuilder) orderBy(orders []util.OrderClause, fallback string) *selectBuilder {
	b.sql.WriteString(" ORDER BY ")
	if len(orders) == 0 {
		b.sql.WriteString(fallback)
		return b
	}
	for i, o := range orders {
		if i > 0 {
			b.sql.WriteString(", ")
		}
		b.sql.WriteString(o.Field)
		if o.Direction == util.OrderDesc {
			b.sql.WriteString(" DESC")
		} else {
			b.sql.WriteString(" ASC")
		}
	}
	return b
}

// page adds LIMIT/OFFSET. A non-positive perPage leaves the result unbounded.
func (b *selectBuilder) page(page, perPage int) *selectBuilder {
	if perPage <= 0 {
		return b
	}
	b.sql.WriteString(" LIMIT ?")
	b.args = append(b.args, perPage)
	if page > 1 {
		b.sql.WriteString(" OFFSET ?")
		b.args = append(b.args, (page-1)*perPage)
	}
	return b
}

func (b *selectBuilder) build() (string, []interface{}) {
	return b.sql.String(), b.args
}
