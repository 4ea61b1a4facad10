package governance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/maulworks/maul/pkg/domain"
)

// advisoryEntrypoint is the Rego document the advisor queries. Policy
// modules must declare `package maul` and define an `advisory` document.
const advisoryEntrypoint = "data.maul.advisory"

// Advisor evaluates optional per-policy Rego modules and returns the
// resulting document as a decision annotation. Prepared queries are cached
// by module digest so repeated evaluations skip compilation.
type Advisor struct {
	mu       sync.Mutex
	prepared map[string]*rego.PreparedEvalQuery
}

// NewAdvisor creates an advisor with an empty compilation cache.
func NewAdvisor() *Advisor {
	return &Advisor{prepared: make(map[string]*rego.PreparedEvalQuery)}
}

// Annotate compiles the module (or reuses a cached compilation) and
// evaluates the advisory document against the action request.
func (a *Advisor) Annotate(ctx context.Context, module string, action domain.ActionRequest) (map[string]any, error) {
	prepared, err := a.getPreparedQuery(ctx, module)
	if err != nil {
		return nil, err
	}

	input := map[string]any{
		"agent_id":    action.AgentID,
		"action_type": action.ActionType,
		"details":     action.Details,
	}

	results, err := prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("rego eval: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return map[string]any{"value": results[0].Expressions[0].Value}, nil
	}
	return doc, nil
}

func (a *Advisor) getPreparedQuery(ctx context.Context, module string) (*rego.PreparedEvalQuery, error) {
	sum := sha256.Sum256([]byte(module))
	key := hex.EncodeToString(sum[:])

	a.mu.Lock()
	defer a.mu.Unlock()

	if q, ok := a.prepared[key]; ok {
		return q, nil
	}

	parsed, err := ast.ParseModuleWithOpts("advisory.rego", module, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return nil, fmt.Errorf("parse rego module: %w", err)
	}

	prepared, err := rego.New(
		rego.Query(advisoryEntrypoint),
		rego.ParsedModule(parsed),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego module: %w", err)
	}

	a.prepared[key] = &prepared
	return &prepared, nil
}
