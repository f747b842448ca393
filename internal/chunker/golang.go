package chunker

import (
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

// ExtractGo emits one unit per function/method declaration and per struct or
// interface type declaration. Doc comments are not part of the unit.
func ExtractGo(path string, src []byte) ([]codesearch.CodeUnit, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}

	unit := func(name string, from, to token.Pos) codesearch.CodeUnit {
		start, end := fset.Position(from), fset.Position(to)
		return codesearch.CodeUnit{
			Name:      codesearch.Ptr(name),
			Code:      string(src[start.Offset:end.Offset]),
			StartLine: codesearch.Ptr(start.Line),
			EndLine:   codesearch.Ptr(end.Line),
		}
	}

	var units []codesearch.CodeUnit
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) == 1 {
				if recv := receiverType(d.Recv.List[0].Type); recv != "" {
					name = recv + "." + name
				}
			}
			units = append(units, unit(name, d.Pos(), d.End()))
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts := spec.(*ast.TypeSpec)
				switch ts.Type.(type) {
				case *ast.StructType, *ast.InterfaceType:
				default:
					continue
				}
				from := ts.Pos()
				if !d.Lparen.IsValid() {
					from = d.Pos()
				}
				units = append(units, unit(ts.Name.Name, from, ts.End()))
			}
		}
	}
	return units, nil
}

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
