package alerting

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Script languages. Painless sources are run by the expr engine, which accepts the
// common comparison subset such as `ctx.results[0].hits.total.value > 0`.
const (
	LangExpr     = "expr"
	LangPainless = "painless"
	LangCEL      = "cel"
)

// ConditionEvaluator evaluates a boolean trigger script.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, script models.Script, vars map[string]any) (bool, error)
}

// ScriptEngine evaluates scripts with expr-lang or CEL and caches compiled programs.
// Scripts see two variables: ctx (the trigger context) and params.
type ScriptEngine struct {
	mu      sync.RWMutex
	exprs   map[string]*vm.Program
	cels    map[string]cel.Program
	celEnv  *cel.Env
	initErr error
}

// NewScriptEngine creates a script engine.
func NewScriptEngine() *ScriptEngine {
	env, err := cel.NewEnv(
		cel.Variable("ctx", cel.DynType),
		cel.Variable("params", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
		ext.Strings(),
		ext.Math(),
	)
	return &ScriptEngine{
		exprs:   make(map[string]*vm.Program),
		cels:    make(map[string]cel.Program),
		celEnv:  env,
		initErr: err,
	}
}

// Compile checks that the script compiles. Used when monitors are saved.
func (e *ScriptEngine) Compile(script models.Script) error {
	switch normalizeLang(script.Lang) {
	case LangExpr:
		_, err := e.exprProgram(script.Source)
		return err
	case LangCEL:
		_, err := e.celProgram(script.Source)
		return err
	default:
		return fmt.Errorf("unsupported script lang %q", script.Lang)
	}
}

// Evaluate runs the script against vars. Script params are exposed as params.
func (e *ScriptEngine) Evaluate(ctx context.Context, script models.Script, vars map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	env := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		env[k] = v
	}
	if _, ok := env["ctx"]; !ok {
		env["ctx"] = map[string]any{}
	}
	params := map[string]any{}
	if p, ok := env["params"].(map[string]any); ok {
		for k, v := range p {
			params[k] = v
		}
	}
	for k, v := range script.Params {
		if _, set := params[k]; !set {
			params[k] = v
		}
	}
	env["params"] = params

	switch normalizeLang(script.Lang) {
	case LangExpr:
		return e.evalExpr(script.Source, env)
	case LangCEL:
		return e.evalCEL(script.Source, env)
	default:
		return false, fmt.Errorf("unsupported script lang %q", script.Lang)
	}
}

func normalizeLang(lang string) string {
	switch strings.ToLower(lang) {
	case "", LangExpr, LangPainless:
		return LangExpr
	case LangCEL:
		return LangCEL
	}
	return lang
}

func (e *ScriptEngine) exprProgram(source string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.exprs[source]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	sampleEnv := map[string]any{
		"ctx":    map[string]any{},
		"params": map[string]any{},
	}
	program, err := expr.Compile(source, expr.Env(sampleEnv), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}

	e.mu.Lock()
	e.exprs[source] = program
	e.mu.Unlock()
	return program, nil
}

func (e *ScriptEngine) evalExpr(source string, env map[string]any) (bool, error) {
	program, err := e.exprProgram(source)
	if err != nil {
		return false, err
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return bool: got %T", result)
	}
	return matched, nil
}

func (e *ScriptEngine) celProgram(source string) (cel.Program, error) {
	if e.initErr != nil {
		return nil, fmt.Errorf("build CEL environment: %w", e.initErr)
	}

	e.mu.RLock()
	program, ok := e.cels[source]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := e.celEnv.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error in expression '%s': %w", source, issues.Err())
	}
	program, err := e.celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error for expression '%s': %w", source, err)
	}

	e.mu.Lock()
	e.cels[source] = program
	e.mu.Unlock()
	return program, nil
}

func (e *ScriptEngine) evalCEL(source string, env map[string]any) (bool, error) {
	program, err := e.celProgram(source)
	if err != nil {
		return false, err
	}
	result, _, err := program.Eval(env)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error in expression '%s': %w", source, err)
	}
	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return bool: got %T", result.Value())
	}
	return matched, nil
}
