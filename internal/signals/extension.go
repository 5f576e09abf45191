package signals

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Evaluator computes extension signals from CEL expressions over the case
// state. Programs are compiled once and cached by signal type; the
// catalogue stays closed because specs come from the static expectation
// table, never from runtime input.
type Evaluator struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program
}

// NewEvaluator creates the CEL environment for extension expressions.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("status", cel.StringType),
		cel.Variable("decision_type", cel.StringType),
		cel.Variable("submission_present", cel.BoolType),
		cel.Variable("field_count", cel.IntType),
		cel.Variable("filled_ratio", cel.DoubleType),
		cel.Variable("attachment_count", cel.IntType),
		cel.Variable("has_trace", cel.BoolType),
		cel.Variable("recent_events", cel.IntType),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile validates and caches the program for an extension spec.
// Expressions must return bool or double.
func (e *Evaluator) Compile(spec domain.ExtensionSpec) error {
	ast, issues := e.env.Compile(spec.Expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("failed to compile extension %s: %w", spec.SignalType, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return fmt.Errorf("extension %s: expression must return bool, int, or double, got %s", spec.SignalType, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return fmt.Errorf("failed to create program for extension %s: %w", spec.SignalType, err)
	}

	e.mu.Lock()
	e.programs[spec.SignalType] = program
	e.mu.Unlock()

	return nil
}

// Evaluate runs a compiled extension against the case state. The spec must
// have been compiled first.
func (e *Evaluator) Evaluate(spec domain.ExtensionSpec, state *domain.CaseState, profile Profile, recentEvents int64) (domain.Signal, error) {
	e.mu.RLock()
	program, ok := e.programs[spec.SignalType]
	e.mu.RUnlock()

	if !ok {
		return domain.Signal{}, fmt.Errorf("extension %s is not compiled", spec.SignalType)
	}

	c := state.Case

	var fields map[string]interface{}
	var filledRatio float64
	fieldCount := 0
	if state.Submission != nil {
		fields = state.Submission.Fields
		fieldCount = len(fields)
		filledRatio = fieldRatio(fields, profile.ExpectedFields)
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}

	activation := map[string]any{
		"status":             c.Status,
		"decision_type":      c.DecisionType,
		"submission_present": state.Submission != nil,
		"field_count":        fieldCount,
		"filled_ratio":       filledRatio,
		"attachment_count":   len(state.LiveAttachments()),
		"has_trace":          c.DecisionTraceID != "",
		"recent_events":      recentEvents,
		"fields":             fields,
	}

	out, _, err := program.Eval(activation)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("extension %s evaluation failed: %w", spec.SignalType, err)
	}

	strength := toStrength(out)

	return domain.Signal{
		CaseID:     c.ID,
		SignalType: spec.SignalType,
		SourceType: spec.SourceType,
		Complete:   strength >= 0.5,
		Strength:   strength,
		Timestamp:  c.UpdatedAt,
		Metadata:   map[string]interface{}{"expression": spec.Expression},
	}, nil
}

// toStrength converts a CEL value to a strength in [0,1].
func toStrength(val ref.Val) float64 {
	var s float64
	switch v := val.(type) {
	case types.Bool:
		if v {
			s = 1
		}
	case types.Double:
		s = float64(v)
	case types.Int:
		s = float64(v)
	}

	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
