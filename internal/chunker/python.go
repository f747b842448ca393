package chunker

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/go-python/gpython/ast"
	_ "github.com/go-python/gpython/builtin"
	"github.com/go-python/gpython/parser"
)

// ExtractPython emits one unit per function or class definition, top-level
// and nested, in source order. Each unit's code is the definition's source
// text starting at the def/class keyword (decorators excluded).
func ExtractPython(path string, src []byte) ([]codesearch.CodeUnit, error) {
	tree, err := parser.ParseString(string(src), "exec")
	if err != nil {
		return nil, err
	}
	mod, ok := tree.(*ast.Module)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected parse root %T", path, tree)
	}

	lines := splitLines(string(src))
	var units []codesearch.CodeUnit

	var visit func(stmts []ast.Stmt)
	visit = func(stmts []ast.Stmt) {
		for _, st := range stmts {
			switch n := st.(type) {
			case *ast.FunctionDef:
				units = append(units, pythonUnit(lines, string(n.Name), n.Lineno, n.Body))
				visit(n.Body)
			case *ast.ClassDef:
				units = append(units, pythonUnit(lines, string(n.Name), n.Lineno, n.Body))
				visit(n.Body)
			case *ast.If:
				visit(n.Body)
				visit(n.Orelse)
			case *ast.For:
				visit(n.Body)
				visit(n.Orelse)
			case *ast.While:
				visit(n.Body)
				visit(n.Orelse)
			case *ast.With:
				visit(n.Body)
			case *ast.Try:
				visit(n.Body)
				for _, h := range n.Handlers {
					visit(h.Body)
				}
				visit(n.Orelse)
				visit(n.Finalbody)
			}
		}
	}
	visit(mod.Body)

	return units, nil
}

// pythonUnit cuts the definition starting at lineno (1-based) out of lines.
func pythonUnit(lines []string, name string, lineno int, body []ast.Stmt) codesearch.CodeUnit {
	start := defLine(lines, lineno)
	indent := indentOf(lines[start-1])
	end := logicalEnd(lines, start, lastLine(body))

	var b strings.Builder
	b.WriteString(lines[start-1][indent:])
	for i := start; i < end; i++ {
		b.WriteByte('\n')
		b.WriteString(lines[i])
	}

	return codesearch.CodeUnit{
		Name:      codesearch.Ptr(name),
		Code:      strings.TrimRight(b.String(), " \t"),
		StartLine: codesearch.Ptr(start),
		EndLine:   codesearch.Ptr(end),
	}
}

// defLine skips decorator lines so the unit begins at the def/class keyword,
// whichever line the parser attributes to a decorated definition.
func defLine(lines []string, lineno int) int {
	if lineno < 1 {
		lineno = 1
	}
	for i := lineno; i <= len(lines); i++ {
		t := strings.TrimSpace(lines[i-1])
		if strings.HasPrefix(t, "def ") || strings.HasPrefix(t, "class ") || strings.HasPrefix(t, "async def ") {
			return i
		}
		if t != "" && !strings.HasPrefix(t, "@") && !strings.HasPrefix(t, "#") {
			break
		}
	}
	if lineno > len(lines) {
		return len(lines)
	}
	return lineno
}

// lastLine returns the highest statement line number in a body, descending
// into nested blocks.
func lastLine(body []ast.Stmt) int {
	hi := 0
	for _, st := range body {
		if l := st.GetLineno(); l > hi {
			hi = l
		}
		var nested [][]ast.Stmt
		switch n := st.(type) {
		case *ast.FunctionDef:
			nested = [][]ast.Stmt{n.Body}
		case *ast.ClassDef:
			nested = [][]ast.Stmt{n.Body}
		case *ast.If:
			nested = [][]ast.Stmt{n.Body, n.Orelse}
		case *ast.For:
			nested = [][]ast.Stmt{n.Body, n.Orelse}
		case *ast.While:
			nested = [][]ast.Stmt{n.Body, n.Orelse}
		case *ast.With:
			nested = [][]ast.Stmt{n.Body}
		case *ast.Try:
			nested = [][]ast.Stmt{n.Body, n.Orelse, n.Finalbody}
			for _, h := range n.Handlers {
				nested = append(nested, h.Body)
			}
		}
		for _, b := range nested {
			if l := lastLine(b); l > hi {
				hi = l
			}
		}
	}
	return hi
}

// logicalEnd returns the last physical line of the logical line that
// contains line last. Scanning starts at start, which must begin a logical
// line, so strings and brackets opened earlier in the unit are tracked. Lines
// inside a string, inside brackets or after a trailing backslash continue the
// logical line whatever their indentation.
func logicalEnd(lines []string, start, last int) int {
	if last < start {
		last = start
	}
	depth := 0
	quote := ""
	for i := start; i <= len(lines); i++ {
		line := lines[i-1]
		joined := false
		for j := 0; j < len(line); {
			c := line[j]
			if quote != "" {
				switch {
				case c == '\\':
					joined = j == len(line)-1
					j += 2
				case strings.HasPrefix(line[j:], quote):
					j += len(quote)
					quote = ""
				default:
					j++
				}
				continue
			}
			switch c {
			case '#':
				j = len(line)
				continue
			case '\'', '"':
				quote = string(c)
				if strings.HasPrefix(line[j:], strings.Repeat(quote, 3)) {
					quote = strings.Repeat(quote, 3)
				}
				j += len(quote)
				continue
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				if depth > 0 {
					depth--
				}
			case '\\':
				joined = j == len(line)-1
			}
			j++
		}
		// A single-quoted string cannot span lines without a backslash.
		if len(quote) == 1 && !joined {
			quote = ""
		}
		if i >= last && quote == "" && depth == 0 && !joined {
			return i
		}
	}
	return len(lines)
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

func splitLines(src string) []string {
	lines := strings.Split(src, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
