package source

import (
	"go/ast"
	"go/token"
	"go/types"

	"github.com/leapstack-labs/grumpy/pkg/core"
	"golang.org/x/tools/go/ast/inspector"
)

// Measure computes metrics for every function declaration in file.
//
// Complexity starts at 1 and adds one for each:
//   - if, for and range statement
//   - case clause with at least one expression (switch, type switch)
//   - comm clause with a communication (select)
//   - && and || operator
//
// Function literals count toward the declaration that contains them.
// Returns inside function literals are not counted as the declaration's
// returns. Nesting depth counts if/for/range/switch/select statements.
func Measure(fset *token.FileSet, file *ast.File) []Function {
	in := inspector.New([]*ast.File{file})

	filter := []ast.Node{
		(*ast.FuncDecl)(nil),
		(*ast.FuncLit)(nil),
		(*ast.IfStmt)(nil),
		(*ast.ForStmt)(nil),
		(*ast.RangeStmt)(nil),
		(*ast.SwitchStmt)(nil),
		(*ast.TypeSwitchStmt)(nil),
		(*ast.SelectStmt)(nil),
		(*ast.CaseClause)(nil),
		(*ast.CommClause)(nil),
		(*ast.BinaryExpr)(nil),
		(*ast.ReturnStmt)(nil),
	}

	var (
		functions []Function
		cur       *Function
		depth     int
		litDepth  int
	)

	in.Nodes(filter, func(n ast.Node, push bool) bool {
		if decl, ok := n.(*ast.FuncDecl); ok {
			if decl.Body == nil {
				return false
			}
			if push {
				fn := newFunction(fset, decl)
				cur = &fn
				depth, litDepth = 0, 0
			} else {
				functions = append(functions, *cur)
				cur = nil
			}
			return true
		}
		if cur == nil {
			return true
		}

		switch node := n.(type) {
		case *ast.FuncLit:
			if push {
				litDepth++
			} else {
				litDepth--
			}
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			if push {
				cur.Complexity++
				depth++
				cur.MaxDepth = max(cur.MaxDepth, depth)
			} else {
				depth--
			}
		case *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt:
			if push {
				depth++
				cur.MaxDepth = max(cur.MaxDepth, depth)
			} else {
				depth--
			}
		case *ast.CaseClause:
			if push && node.List != nil {
				cur.Complexity++
			}
		case *ast.CommClause:
			if push && node.Comm != nil {
				cur.Complexity++
			}
		case *ast.BinaryExpr:
			if push && (node.Op == token.LAND || node.Op == token.LOR) {
				cur.Complexity++
			}
		case *ast.ReturnStmt:
			if push && litDepth == 0 {
				cur.Returns++
			}
		}
		return true
	})

	return functions
}

func newFunction(fset *token.FileSet, decl *ast.FuncDecl) Function {
	start := fset.Position(decl.Pos())
	end := fset.Position(decl.End())

	fn := Function{
		Name: decl.Name.Name,
		Span: core.Span{
			StartLine:   start.Line,
			StartColumn: start.Column,
			EndLine:     end.Line,
			EndColumn:   end.Column,
		},
		Complexity: 1,
		Lines:      end.Line - start.Line + 1,
		Params:     countFields(decl.Type.Params),
	}
	if decl.Recv != nil && len(decl.Recv.List) > 0 {
		fn.Receiver = types.ExprString(decl.Recv.List[0].Type)
	}
	return fn
}

// countFields counts parameters, treating "a, b int" as two.
func countFields(list *ast.FieldList) int {
	if list == nil {
		return 0
	}
	n := 0
	for _, field := range list.List {
		if len(field.Names) == 0 {
			n++
			continue
		}
		n += len(field.Names)
	}
	return n
}
