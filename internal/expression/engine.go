// Package expression 对 expr-lang 的封装, 用于流程里的条件、默认值和连接器输入输出
package expression

import (
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"
)

var (
	ErrExpressionCompile    = errors.New("expression compile failed")
	ErrExpressionEvaluation = errors.New("expression evaluation failed")
)

// Engine 编译结果按表达式文本缓存, 并发安全
type Engine struct {
	mu           sync.RWMutex
	programCache map[string]*vm.Program
}

func NewEngine() *Engine {
	return &Engine{programCache: make(map[string]*vm.Program)}
}

// Evaluate 在 env 上执行表达式, 未定义的变量为 nil
func (e *Engine) Evaluate(expression string, env map[string]any) (any, error) {
	program, err := e.getProgram(expression)
	if err != nil {
		return nil, err
	}
	if env == nil {
		env = map[string]any{}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, errors.WithMessagef(ErrExpressionEvaluation, "expression: %q, err: %v", expression, err)
	}
	return out, nil
}

// EvaluateBool 条件表达式, 结果必须是 bool; 空表达式为 true
func (e *Engine) EvaluateBool(expression string, env map[string]any) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	out, err := e.Evaluate(expression, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, errors.WithMessagef(ErrExpressionEvaluation, "expression %q returns %T, want bool", expression, out)
	}
	return b, nil
}

// Validate 只编译不执行, 部署流程时检查表达式
func (e *Engine) Validate(expression string) error {
	_, err := e.getProgram(expression)
	return err
}

func (e *Engine) getProgram(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programCache[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if program, ok := e.programCache[expression]; ok {
		return program, nil
	}
	program, err := expr.Compile(expression, options()...)
	if err != nil {
		return nil, errors.WithMessagef(ErrExpressionCompile, "expression: %q, err: %v", expression, err)
	}
	e.programCache[expression] = program
	return program, nil
}

func options() []expr.Option {
	return []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.Function("TODAY", func(params ...any) (any, error) {
			return time.Now().Format("2006-01-02"), nil
		}),
		expr.Function("NOW", func(params ...any) (any, error) {
			return time.Now().UnixMilli(), nil
		}),
		expr.Function("UPPER", func(params ...any) (any, error) {
			s, err := singleString("UPPER", params)
			if err != nil {
				return nil, err
			}
			return strings.ToUpper(s), nil
		}),
		expr.Function("LOWER", func(params ...any) (any, error) {
			s, err := singleString("LOWER", params)
			if err != nil {
				return nil, err
			}
			return strings.ToLower(s), nil
		}),
		expr.Function("DEFAULT", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, errors.New("DEFAULT requires 2 arguments")
			}
			if params[0] == nil {
				return params[1], nil
			}
			return params[0], nil
		}),
	}
}

func singleString(name string, params []any) (string, error) {
	if len(params) != 1 {
		return "", errors.Errorf("%s requires 1 argument", name)
	}
	s, ok := params[0].(string)
	if !ok {
		return "", errors.Errorf("%s argument must be string", name)
	}
	return s, nil
}
