// Staticlint проверки, которые гоняются по сокращателю перед сборкой.
//
// Набор собран под то, на чём держится сервис: конкурентный ограничитель
// (atomic, copylock, nilness), контексты и HTTP (lostcancel, httpresponse),
// все SA проверки staticcheck, ST1005, ineffassign и errcheck.
// Свои анализаторы:
//   - injectedclock: ratelimit читает время только из внедрённых часов
//   - nodirectosexit: os.Exit в main пропускает отложенные вызовы
//
// Запуск:
//
//	go run ./cmd/staticlint ./...
package main

import (
	"strings"

	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/kisielk/errcheck/errcheck"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/atomic"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/nilness"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/shadow"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/testinggoroutine"
	"golang.org/x/tools/go/analysis/passes/unusedresult"
	"honnef.co/go/tools/staticcheck"
	"honnef.co/go/tools/stylecheck"
)

// styleChecks проверки stylecheck, которые включены помимо SA
var styleChecks = map[string]bool{
	"ST1005": true, // текст ошибки с маленькой буквы и без точки
}

func analyzers() []*analysis.Analyzer {
	checks := []*analysis.Analyzer{
		InjectedClockAnalyzer,
		NoDirectOsExitAnalyzer,

		atomic.Analyzer,
		copylock.Analyzer,
		nilness.Analyzer,
		lostcancel.Analyzer,
		httpresponse.Analyzer,
		errorsas.Analyzer,
		loopclosure.Analyzer,
		printf.Analyzer,
		shadow.Analyzer,
		structtag.Analyzer,
		testinggoroutine.Analyzer,
		unusedresult.Analyzer,

		ineffassign.Analyzer,
		errcheck.Analyzer,
	}

	for _, a := range staticcheck.Analyzers {
		if strings.HasPrefix(a.Analyzer.Name, "SA") {
			checks = append(checks, a.Analyzer)
		}
	}
	for _, a := range stylecheck.Analyzers {
		if styleChecks[a.Analyzer.Name] {
			checks = append(checks, a.Analyzer)
		}
	}
	return checks
}

func main() {
	multichecker.Main(analyzers()...)
}
