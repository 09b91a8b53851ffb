package main

import (
	"go/ast"
	"go/types"
	"path"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// NoDirectOsExitAnalyzer запрещает прямой вызов os.Exit в функции main пакета main:
// отложенные вызовы (закрытие хранилища, сброс логов) при этом не выполняются
var NoDirectOsExitAnalyzer = &analysis.Analyzer{
	Name:     "nodirectosexit",
	Doc:      "forbid direct calls to os.Exit in main function of main package",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      runNoDirectOsExit,
}

// InjectedClockAnalyzer запрещает time.Now, time.Since и time.Until в пакете ratelimit.
// Ограничитель получает время только через внедрённые часы, иначе тесты с
// подменённым временем расходятся с реальным поведением
var InjectedClockAnalyzer = &analysis.Analyzer{
	Name:     "injectedclock",
	Doc:      "forbid reading the wall clock directly in ratelimit packages",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      runInjectedClock,
}

var wallClockFuncs = map[string]bool{"Now": true, "Since": true, "Until": true}

func runNoDirectOsExit(pass *analysis.Pass) (interface{}, error) {
	if pass.Pkg.Name() != "main" {
		return nil, nil
	}
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	insp.Preorder([]ast.Node{(*ast.FuncDecl)(nil)}, func(n ast.Node) {
		fn := n.(*ast.FuncDecl)
		if fn.Recv != nil || fn.Name.Name != "main" || fn.Body == nil {
			return
		}

		ast.Inspect(fn.Body, func(node ast.Node) bool {
			// замыкания внутри main (например, горутины) проверяем так же
			call, ok := node.(*ast.CallExpr)
			if !ok {
				return true
			}
			if name, ok := calledFunc(pass, call, "os"); ok && name == "Exit" {
				pass.Reportf(call.Pos(), "direct call to os.Exit in main function of main package is forbidden")
			}
			return true
		})
	})

	return nil, nil
}

func runInjectedClock(pass *analysis.Pass) (interface{}, error) {
	if path.Base(pass.Pkg.Path()) != "ratelimit" {
		return nil, nil
	}
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	insp.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		if strings.HasSuffix(pass.Fset.Position(call.Pos()).Filename, "_test.go") {
			return
		}
		if name, ok := calledFunc(pass, call, "time"); ok && wallClockFuncs[name] {
			pass.Reportf(call.Pos(), "time.%s reads the wall clock, use the injected Clock", name)
		}
	})

	return nil, nil
}

// calledFunc имя функции пакета pkgPath, которую вызывает call. Учитывает
// переименованный импорт, потому что смотрит на объект, а не на идентификатор
func calledFunc(pass *analysis.Pass, call *ast.CallExpr, pkgPath string) (string, bool) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return "", false
	}
	fn, ok := pass.TypesInfo.Uses[sel.Sel].(*types.Func)
	if !ok || fn.Pkg() == nil || fn.Pkg().Path() != pkgPath {
		return "", false
	}
	// методы (например, time.Time.Sub) не считаются
	if sig, ok := fn.Type().(*types.Signature); ok && sig.Recv() != nil {
		return "", false
	}
	return fn.Name(), true
}
