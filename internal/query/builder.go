package query

import (
	"fmt"
	"strings"
	"time"
)

// TenantColumn is the column every tenant-owned table scopes on.
const TenantColumn = "tenant_id"

// Spec describes a tenant- and time-filtered table read. A nil
// TenantID means all tenants (backup only; exports always set it).
type Spec struct {
	Table    string
	TenantID *string
	Filters  []Filter
	Since    *time.Time
	Until    *time.Time
	SortKey  string
	SortDesc bool
}

// Build renders the spec as a parameter-bound SELECT with LIMIT/OFFSET
// pagination. When TenantID is set, the tenant-equality predicate is
// always part of the WHERE clause; there is no code path that omits it.
func (s Spec) Build(limit, offset int) (string, []any, error) {
	if !ValidIdentifier(s.Table) {
		return "", nil, fmt.Errorf("invalid table name %q", s.Table)
	}

	var conditions []string
	var args []any

	if s.TenantID != nil {
		conditions = append(conditions, TenantColumn+" = ?")
		args = append(args, *s.TenantID)
	}

	if s.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, s.Since.UTC())
	}
	if s.Until != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, s.Until.UTC())
	}

	for _, f := range s.Filters {
		if !ValidIdentifier(f.Field) {
			return "", nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		clause, clauseArgs, err := buildFilterClause(f)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, clause)
		args = append(args, clauseArgs...)
	}

	sortKey := s.SortKey
	if sortKey == "" {
		sortKey = "id"
	}
	if !ValidIdentifier(sortKey) {
		return "", nil, fmt.Errorf("invalid sort key %q", sortKey)
	}
	direction := "ASC"
	if s.SortDesc {
		direction = "DESC"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s", s.Table)
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s LIMIT ? OFFSET ?", sortKey, direction)
	args = append(args, limit, offset)

	return sb.String(), args, nil
}

// InjectTenantPredicate forces the engine's own tenant-equality
// predicate into a caller-supplied raw query. Caller-supplied scoping
// is never trusted: a query that merely mentions the tenant column in
// its projection, or carries a literal tenant predicate of its own,
// still gets the bound predicate prepended and any existing condition
// wrapped. The tenant value binds as a leading argument.
func InjectTenantPredicate(raw string) string {
	head, cond, tail := splitRawQuery(raw)
	if cond == "" {
		return head + " WHERE " + TenantColumn + " = ?" + tail
	}
	return head + " WHERE " + TenantColumn + " = ? AND (" + cond + ")" + tail
}

// splitRawQuery splits a SELECT into the part before WHERE, the WHERE
// condition, and the trailing ORDER BY / GROUP BY / LIMIT clause.
func splitRawQuery(raw string) (head, cond, tail string) {
	lower := strings.ToLower(raw)

	tailIdx := len(raw)
	for _, kw := range []string{" order by ", " group by ", " limit "} {
		if i := strings.Index(lower, kw); i >= 0 && i < tailIdx {
			tailIdx = i
		}
	}

	whereIdx := strings.Index(lower[:tailIdx], " where ")
	if whereIdx < 0 {
		return strings.TrimRight(raw[:tailIdx], " "), "", raw[tailIdx:]
	}

	head = strings.TrimRight(raw[:whereIdx], " ")
	cond = strings.TrimSpace(raw[whereIdx+len(" where ") : tailIdx])
	tail = raw[tailIdx:]
	return head, cond, tail
}
