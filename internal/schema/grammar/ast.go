package grammar

// Pos is a 1-based line/column position in the schema text.
type Pos struct {
	Line int
	Col  int
}

// Schema is the parse tree of one CSVS document.
type Schema struct {
	Version    string
	Directives []Directive
	Columns    []Column
}

// Directive is a global (@separator, @totalColumns, ...) or column
// (@optional, @matchIsFalse, ...) modifier. Value is set for directives
// that take an argument.
type Directive struct {
	Pos   Pos
	Name  string
	Value *Arg
}

// Column is one `name: expr* @directive*` definition.
type Column struct {
	Pos        Pos
	Name       string
	Exprs      []Expr
	Directives []Directive
}

// Expr is a node of a column expression. The set is closed: *Leaf,
// *Binary, *If and *Context.
type Expr interface {
	Position() Pos
	expr()
}

// Leaf is a primitive check such as is("x") or notEmpty.
type Leaf struct {
	Pos  Pos
	Name string
	Args []Arg
}

// Binary is `Left and Right` or `Left or Right`.
type Binary struct {
	Pos   Pos
	Op    string
	Left  Expr
	Right Expr
}

// If is `if(cond, then..., else...)`.
type If struct {
	Pos  Pos
	Cond Expr
	Then []Expr
	Else []Expr
}

// Context is `$column/inner`.
type Context struct {
	Pos    Pos
	Column string
	Inner  Expr
}

func (e *Leaf) Position() Pos    { return e.Pos }
func (e *Binary) Position() Pos  { return e.Pos }
func (e *If) Position() Pos      { return e.Pos }
func (e *Context) Position() Pos { return e.Pos }

func (*Leaf) expr()    {}
func (*Binary) expr()  {}
func (*If) expr()      {}
func (*Context) expr() {}

// ArgKind tells how an argument was written.
type ArgKind int

const (
	ArgString ArgKind = iota
	ArgInt
	ArgNumber
	ArgChar
	ArgIdent
	ArgWildcard
	ArgColumnRef
	ArgFile
)

// Arg is a leaf or directive argument. For ArgColumnRef, Text is the
// column name; for ArgFile, File is set.
type Arg struct {
	Pos  Pos
	Kind ArgKind
	Text string
	File *FileArg
}

// FileArg is `file([base,] path)` inside checksum.
type FileArg struct {
	Base *Arg
	Path Arg
}
