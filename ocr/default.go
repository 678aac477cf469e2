package ocr

import (
	"context"
	"fmt"
	"sync"
)

var (
	defaultMu     sync.RWMutex
	defaultEngine Engine = noopEngine{}
)

// DefaultEngine returns the engine registered by SetDefaultEngine. Importing
// ocr/tesseract registers Tesseract.
func DefaultEngine() Engine {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultEngine
}

// SetDefaultEngine sets the library's default OCR engine.
func SetDefaultEngine(engine Engine) {
	defaultMu.Lock()
	defaultEngine = engine
	defaultMu.Unlock()
}

// Recognize runs engine over inputs and returns one result and one error
// slot per input, in order. A BatchEngine gets every input in a single call;
// when that call fails or returns the wrong number of results, or the engine
// cannot batch, the inputs are recognized one at a time so a bad page only
// costs its own result.
func Recognize(ctx context.Context, engine Engine, inputs []Input) ([]Result, []error) {
	results := make([]Result, len(inputs))
	errs := make([]error, len(inputs))
	if len(inputs) == 0 {
		return results, errs
	}
	if b, ok := engine.(BatchEngine); ok {
		batch, err := b.RecognizeBatch(ctx, inputs)
		if err == nil && len(batch) == len(inputs) {
			copy(results, batch)
			return results, errs
		}
		if err := ctx.Err(); err != nil {
			for i := range errs {
				errs[i] = err
			}
			return results, errs
		}
	}
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		res, err := engine.Recognize(ctx, in)
		if err != nil {
			errs[i] = fmt.Errorf("recognize %s: %w", in.ID, err)
			continue
		}
		results[i] = res
	}
	return results, errs
}

type noopEngine struct{}

func (noopEngine) Name() string {
	return "noop"
}

func (noopEngine) Recognize(ctx context.Context, input Input) (Result, error) {
	return Result{InputID: input.ID, Page: input.Page}, nil
}
