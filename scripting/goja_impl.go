package scripting

import (
	"context"
	"errors"
	"sync"

	"github.com/dop251/goja"
)

// GojaEngine runs scripts on one goja runtime. Calls are serialized.
type GojaEngine struct {
	mu sync.Mutex
	vm *goja.Runtime
}

func NewEngine() *GojaEngine {
	return &GojaEngine{vm: goja.New()}
}

func (e *GojaEngine) Execute(ctx context.Context, script string) (interface{}, error) {
	val, err := e.run(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(script)
	})
	if err != nil {
		return nil, err
	}
	return val.Export(), nil
}

func (e *GojaEngine) Set(name string, value interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.Set(name, value)
}

// run executes fn with the runtime interrupted when ctx ends.
func (e *GojaEngine) run(ctx context.Context, fn func(*goja.Runtime) (goja.Value, error)) (goja.Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := fn(e.vm)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause := interrupted.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return val, nil
}
