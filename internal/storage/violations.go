package storage

import (
	"fmt"
	"strings"
)

// ColumnKind is the logical type of a violations-table column.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindShortText
	KindBigInt
	KindInt
	KindBool
)

// Column describes one violations-table column.
type Column struct {
	Name    string
	Kind    ColumnKind
	NotNull bool
}

// ViolationColumns is the fixed layout of the violations table, in COPY
// order. Row values produced by the report sink follow this order.
var ViolationColumns = []Column{
	{Name: "run_id", Kind: KindShortText, NotNull: true},
	{Name: "job", Kind: KindShortText, NotNull: true},
	{Name: "row_index", Kind: KindBigInt, NotNull: true},
	{Name: "line", Kind: KindBigInt},
	{Name: "column_index", Kind: KindInt, NotNull: true},
	{Name: "column_name", Kind: KindShortText},
	{Name: "value", Kind: KindText},
	{Name: "code", Kind: KindShortText, NotNull: true},
	{Name: "expr", Kind: KindText},
	{Name: "warning", Kind: KindBool, NotNull: true},
}

// ViolationColumnNames returns the column names of ViolationColumns.
func ViolationColumnNames() []string {
	out := make([]string, len(ViolationColumns))
	for i, c := range ViolationColumns {
		out[i] = c.Name
	}
	return out
}

// Dialect captures what differs between backends when creating the table.
type Dialect struct {
	// Quote quotes a single identifier.
	Quote func(string) string
	// Types maps each ColumnKind to a SQL type.
	Types map[ColumnKind]string
	// Guard wraps a bare CREATE TABLE so it is a no-op when the table exists.
	// qualified is the quoted table name.
	Guard func(qualified, create string) string
}

// QualifiedName quotes a possibly schema-qualified name ("dbo.v" →
// [dbo].[v]) using d.Quote.
func (d Dialect) QualifiedName(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

// CreateViolationsTable renders the guarded CREATE TABLE statement for the
// violations table.
func (d Dialect) CreateViolationsTable(table string) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("storage: table must not be empty")
	}
	qualified := d.QualifiedName(table)
	defs := make([]string, 0, len(ViolationColumns))
	for _, c := range ViolationColumns {
		typ, ok := d.Types[c.Kind]
		if !ok {
			return "", fmt.Errorf("storage: dialect has no type for column %s", c.Name)
		}
		def := d.Quote(c.Name) + " " + typ
		if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	create := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", qualified, strings.Join(defs, ",\n  "))
	return d.Guard(qualified, create), nil
}

// IfNotExists is the Guard for backends that support CREATE TABLE IF NOT EXISTS.
func IfNotExists(_, create string) string {
	return strings.Replace(create, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
}
