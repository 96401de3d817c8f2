// Package parser locates top-level Go declarations using go/parser.
//
// The code chunker uses it for .go files, where the AST gives exact block
// boundaries; other languages go through the regular-expression pattern
// table instead.
//
//	p := parser.New()
//	decls, err := p.Declarations("main.go", src)
//	if err != nil {
//	    // fall back to pattern matching
//	}
//	for _, d := range decls {
//	    fmt.Printf("%s %s [%d:%d]\n", d.Kind, d.Name, d.Start, d.End)
//	}
package parser
