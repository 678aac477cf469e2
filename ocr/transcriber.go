package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/recovery"
	"github.com/bnrm/pdfview/render"
)

// DefaultTranscribeScale renders pages at 216 dpi for recognition.
const DefaultTranscribeScale = 3.0

// PageRenderer rasterizes a page without caching it.
type PageRenderer interface {
	RenderPage(ctx context.Context, req render.Request) (render.Image, error)
}

type TranscriberOption func(*Transcriber)

func WithEngine(e Engine) TranscriberOption {
	return func(t *Transcriber) {
		if e != nil {
			t.engine = e
		}
	}
}

func WithScale(scale float64) TranscriberOption {
	return func(t *Transcriber) {
		if scale > 0 {
			t.scale = scale
		}
	}
}

func WithInputOptions(opts ...InputOption) TranscriberOption {
	return func(t *Transcriber) { t.inputOpts = append(t.inputOpts, opts...) }
}

func WithStrategy(s recovery.Strategy) TranscriberOption {
	return func(t *Transcriber) {
		if s != nil {
			t.strategy = s
		}
	}
}

func WithLogger(l observability.Logger) TranscriberOption {
	return func(t *Transcriber) {
		if l != nil {
			t.log = l
		}
	}
}

// Transcriber renders scanned pages, recognizes them and stores the
// transcripts.
type Transcriber struct {
	renderer  PageRenderer
	store     Store
	engine    Engine
	scale     float64
	inputOpts []InputOption
	strategy  recovery.Strategy
	log       observability.Logger
}

func NewTranscriber(renderer PageRenderer, store Store, opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{
		renderer: renderer,
		store:    store,
		scale:    DefaultTranscribeScale,
		log:      observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.engine == nil {
		t.engine = DefaultEngine()
	}
	if t.strategy == nil {
		s := recovery.NewLenientStrategy()
		s.Logger = t.log
		t.strategy = s
	}
	return t
}

// Transcribe renders pages of source, recognizes them in one batch and
// returns how many transcripts were stored. A page failure is handed to the
// strategy; only ActionFail stops the run.
func (t *Transcriber) Transcribe(ctx context.Context, source, documentID string, pages []int) (int, error) {
	fail := func(page int, err error) bool {
		loc := recovery.Location{Source: source, Page: page, Component: "ocr"}
		return t.strategy.OnError(ctx, err, loc) == recovery.ActionFail
	}

	inputs := make([]Input, 0, len(pages))
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		in, err := t.input(ctx, source, documentID, page)
		if err != nil {
			if fail(page, err) {
				return 0, err
			}
			continue
		}
		inputs = append(inputs, in)
	}

	results, errs := Recognize(ctx, t.engine, inputs)
	stored := 0
	for i, in := range inputs {
		err := errs[i]
		if err == nil {
			err = t.store.PutOcrText(ctx, documentID, in.Page, strings.TrimSpace(results[i].PlainText))
		}
		if err == nil {
			stored++
			continue
		}
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		if fail(in.Page, fmt.Errorf("page %d: %w", in.Page, err)) {
			return stored, err
		}
	}
	t.log.Info("transcription finished",
		observability.String("document", documentID),
		observability.String("engine", t.engine.Name()),
		observability.Int("pages", len(pages)),
		observability.Int("stored", stored),
	)
	return stored, nil
}

func (t *Transcriber) input(ctx context.Context, source, documentID string, page int) (Input, error) {
	img, err := t.renderer.RenderPage(ctx, render.Request{Source: source, Page: page, Scale: t.scale})
	if err != nil {
		return Input{}, err
	}
	return InputFromPage(documentID, img, t.inputOpts...)
}
