package scripting

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/bnrm/pdfview/observability"
)

// DefaultPolicyTimeout bounds one policy evaluation.
const DefaultPolicyTimeout = 50 * time.Millisecond

// ScriptPolicy is an access.Policy backed by a script. The script sees the
// globals page and totalPages and either evaluates to a boolean or to a
// function called as f(page, totalPages).
//
//	page <= 3 || page % 2 === 1
type ScriptPolicy struct {
	engine  *GojaEngine
	program *goja.Program
	total   atomic.Int64
	timeout time.Duration
	log     observability.Logger
}

type PolicyOption func(*ScriptPolicy)

func WithPolicyTimeout(d time.Duration) PolicyOption {
	return func(p *ScriptPolicy) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithPolicyLogger(l observability.Logger) PolicyOption {
	return func(p *ScriptPolicy) {
		if l != nil {
			p.log = l
		}
	}
}

// CompilePolicy parses script once; evaluation errors later deny the page.
func CompilePolicy(script string, totalPages int, opts ...PolicyOption) (*ScriptPolicy, error) {
	prog, err := goja.Compile("access-policy", script, true)
	if err != nil {
		return nil, fmt.Errorf("compile access policy: %w", err)
	}
	p := &ScriptPolicy{
		engine:  NewEngine(),
		program: prog,
		timeout: DefaultPolicyTimeout,
		log:     observability.NopLogger{},
	}
	p.total.Store(int64(totalPages))
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// SetTotalPages updates totalPages once the document reports its real count.
func (p *ScriptPolicy) SetTotalPages(n int) { p.total.Store(int64(n)) }

// Accessible evaluates the policy for page. Failures and timeouts deny.
func (p *ScriptPolicy) Accessible(page int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	ok, err := p.Evaluate(ctx, page)
	if err != nil {
		p.log.Warn("access policy failed", observability.Int("page", page), observability.Error("error", err))
		return false
	}
	return ok
}

// Evaluate runs the policy for page and reports its verdict.
func (p *ScriptPolicy) Evaluate(ctx context.Context, page int) (bool, error) {
	total := p.total.Load()
	val, err := p.engine.run(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		if err := vm.Set("page", page); err != nil {
			return nil, err
		}
		if err := vm.Set("totalPages", total); err != nil {
			return nil, err
		}
		v, err := vm.RunProgram(p.program)
		if err != nil {
			return nil, err
		}
		if fn, ok := goja.AssertFunction(v); ok {
			return fn(goja.Undefined(), vm.ToValue(page), vm.ToValue(total))
		}
		return v, nil
	})
	if err != nil {
		return false, err
	}
	return val.ToBoolean(), nil
}
