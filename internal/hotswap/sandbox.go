package hotswap

import (
	"fmt"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"annopipe/internal/logging"
)

// allowedImports whitelists stdlib-only packages a hot-swap candidate's
// source may import, the same import-validation technique as the
// reference's yaegi_executor.go: a candidate is interpreted in a sandboxed
// yaegi.Interpreter before it is ever promoted to a running slot.
var allowedImports = map[string]bool{
	"context":         true,
	"strings":         true,
	"regexp":          true,
	"strconv":         true,
	"unicode":         true,
	"sort":            true,
	"fmt":             true,
	"errors":          true,
	"time":            true,
}

// ValidateCandidateSource interprets candidateSrc in a sandboxed yaegi
// interpreter restricted to the stdlib, then evaluates evalExpr (typically
// a constructor call) and returns the resulting value. An entry of the
// imports argument outside allowedImports, or any panic/compile error during
// interpretation, fails validation without ever touching the live process's
// component registry. The import clauses written inside candidateSrc are not
// compared against allowedImports.
func ValidateCandidateSource(candidateSrc, evalExpr string, imports []string) (any, error) {
	for _, imp := range imports {
		if !allowedImports[imp] {
			return nil, fmt.Errorf("candidate imports disallowed package %q", imp)
		}
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("sandbox setup failed: %w", err)
	}

	if _, err := i.Eval(candidateSrc); err != nil {
		logging.HotSwapWarn("candidate source failed to interpret: %v", err)
		return nil, fmt.Errorf("candidate source invalid: %w", err)
	}

	result, err := i.Eval(evalExpr)
	if err != nil {
		return nil, fmt.Errorf("candidate constructor failed: %w", err)
	}

	return result.Interface(), nil
}
