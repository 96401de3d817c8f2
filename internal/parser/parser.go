package parser

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
)

// DeclKind classifies a top-level declaration.
type DeclKind string

const (
	KindType     DeclKind = "class"
	KindFunction DeclKind = "function"
)

// Decl is a top-level Go declaration located by byte offsets into the
// source it was parsed from.
type Decl struct {
	Kind DeclKind
	Name string

	Start     int // first byte of the declaration keyword
	End       int // one past the closing brace
	BodyStart int // offset of the opening brace, -1 when there is none
}

// Parser locates Go declarations with go/parser. It holds no state
// between calls and is safe for concurrent use.
type Parser struct{}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{}
}

// Declarations parses src and returns its functions, methods, structs and
// interfaces in source order. Syntax errors are returned; callers fall back
// to pattern matching for files go/parser rejects.
func (p *Parser) Declarations(filename string, src string) ([]Decl, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	e := &declExtractor{fset: fset}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			e.extractFunction(d)
		case *ast.GenDecl:
			e.extractGenDecl(d)
		}
	}

	sort.SliceStable(e.decls, func(i, j int) bool {
		return e.decls[i].Start < e.decls[j].Start
	})
	return e.decls, nil
}

// declExtractor collects declarations from a parsed file
type declExtractor struct {
	fset  *token.FileSet
	decls []Decl
}

func (e *declExtractor) offset(pos token.Pos) int {
	return e.fset.Position(pos).Offset
}

// extractFunction records functions and methods. Methods are named
// Receiver.Method.
func (e *declExtractor) extractFunction(fn *ast.FuncDecl) {
	name := fn.Name.Name
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		if recv := receiverType(fn.Recv.List[0].Type); recv != "" {
			name = recv + "." + name
		}
	}

	d := Decl{
		Kind:      KindFunction,
		Name:      name,
		Start:     e.offset(fn.Pos()),
		End:       e.offset(fn.End()),
		BodyStart: -1,
	}
	if fn.Body != nil {
		d.BodyStart = e.offset(fn.Body.Lbrace)
	}
	e.decls = append(e.decls, d)
}

// extractGenDecl records struct and interface type declarations. A
// single-spec declaration spans the whole "type X struct{...}"; grouped
// declarations yield one entry per spec.
func (e *declExtractor) extractGenDecl(gd *ast.GenDecl) {
	if gd.Tok != token.TYPE {
		return
	}
	for _, spec := range gd.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}

		var opening token.Pos
		switch t := ts.Type.(type) {
		case *ast.StructType:
			opening = t.Fields.Opening
		case *ast.InterfaceType:
			opening = t.Methods.Opening
		default:
			continue
		}

		start, end := ts.Pos(), ts.End()
		if !gd.Lparen.IsValid() {
			start, end = gd.Pos(), gd.End()
		}
		e.decls = append(e.decls, Decl{
			Kind:      KindType,
			Name:      ts.Name.Name,
			Start:     e.offset(start),
			End:       e.offset(end),
			BodyStart: e.offset(opening),
		})
	}
}

// receiverType extracts the receiver type name from a method
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	}
	return ""
}
