// Package config holds the host configuration of the viewer core. Values
// missing from a JSON file keep their defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bnrm/pdfview/access"
	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/overlay"
)

// Duration is a time.Duration encoded as a Go duration string ("150ms").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(n) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Cache struct {
	MaxImages int `json:"max_images"`
}

type Prefetch struct {
	InitialDelay Duration `json:"initial_delay"`
	Stagger      Duration `json:"stagger"`
	Radius       int      `json:"radius"`
}

type Viewport struct {
	BufferPages         int      `json:"buffer_pages"`
	EstimatedPageHeight float64  `json:"estimated_page_height"`
	PrefetchAhead       int      `json:"prefetch_ahead"`
	PrefetchDebounce    Duration `json:"prefetch_debounce"`
	FrameInterval       Duration `json:"frame_interval"`
}

type PageTurn struct {
	DragThreshold float64  `json:"drag_threshold"`
	Transition    Duration `json:"transition"`
	MaxTranslate  float64  `json:"max_translate"`
	MaxRotate     float64  `json:"max_rotate"`
	// ReadingDirection is ltr, rtl or auto (detected from the first page).
	ReadingDirection string `json:"reading_direction"`
}

type Overlay struct {
	MinSearchLen     int    `json:"min_search_len"`
	TranscriptFormat string `json:"transcript_format"`
}

type Access struct {
	Display   string `json:"display"`
	Message   string `json:"message"`
	FreePages int    `json:"free_pages"`
	// Script, when set, replaces FreePages with a JavaScript policy.
	Script string `json:"script"`
}

type Render struct {
	DefaultScale     float64  `json:"default_scale"`
	MaxDimension     int      `json:"max_dimension"`
	MaxPixels        int64    `json:"max_pixels"`
	MaxDocumentBytes int64    `json:"max_document_bytes"`
	FetchTimeout     Duration `json:"fetch_timeout"`
}

type Storage struct {
	SQLitePath string `json:"sqlite_path"`
}

type Log struct {
	Level string `json:"level"`
}

type Config struct {
	Cache    Cache    `json:"cache"`
	Prefetch Prefetch `json:"prefetch"`
	Viewport Viewport `json:"viewport"`
	PageTurn PageTurn `json:"page_turn"`
	Overlay  Overlay  `json:"overlay"`
	Access   Access   `json:"access"`
	Render   Render   `json:"render"`
	Storage  Storage  `json:"storage"`
	Log      Log      `json:"log"`
}

func Default() Config {
	return Config{
		Cache: Cache{MaxImages: 30},
		Prefetch: Prefetch{
			InitialDelay: Duration(50 * time.Millisecond),
			Stagger:      Duration(100 * time.Millisecond),
			Radius:       2,
		},
		Viewport: Viewport{
			BufferPages:         3,
			EstimatedPageHeight: 800,
			PrefetchAhead:       3,
			PrefetchDebounce:    Duration(150 * time.Millisecond),
			FrameInterval:       Duration(16 * time.Millisecond),
		},
		PageTurn: PageTurn{
			DragThreshold:    60,
			Transition:       Duration(250 * time.Millisecond),
			MaxTranslate:     200,
			MaxRotate:        8,
			ReadingDirection: "ltr",
		},
		Overlay: Overlay{MinSearchLen: 2, TranscriptFormat: "markdown"},
		Access:  Access{Display: "blur"},
		Render: Render{
			DefaultScale:     1.5,
			MaxDimension:     16384,
			MaxPixels:        64 * 1024 * 1024,
			MaxDocumentBytes: 512 << 20,
			FetchTimeout:     Duration(60 * time.Second),
		},
		Log: Log{Level: "info"},
	}
}

// Load reads a JSON file over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads JSON from r over the defaults and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Cache.MaxImages < 1 {
		errs = append(errs, fmt.Errorf("cache.max_images must be >= 1, got %d", c.Cache.MaxImages))
	}
	if c.Prefetch.InitialDelay < 0 || c.Prefetch.Stagger < 0 {
		errs = append(errs, errors.New("prefetch delays must not be negative"))
	}
	if c.Prefetch.Radius < 0 {
		errs = append(errs, fmt.Errorf("prefetch.radius must not be negative, got %d", c.Prefetch.Radius))
	}
	if c.Viewport.EstimatedPageHeight <= 0 {
		errs = append(errs, errors.New("viewport.estimated_page_height must be positive"))
	}
	if c.Viewport.BufferPages < 0 || c.Viewport.PrefetchAhead < 0 {
		errs = append(errs, errors.New("viewport page counts must not be negative"))
	}
	switch strings.ToLower(c.PageTurn.ReadingDirection) {
	case "", "ltr", "rtl", "auto":
	default:
		errs = append(errs, fmt.Errorf("page_turn.reading_direction %q", c.PageTurn.ReadingDirection))
	}
	if c.PageTurn.DragThreshold <= 0 {
		errs = append(errs, errors.New("page_turn.drag_threshold must be positive"))
	}
	if _, ok := overlay.ParseTranscriptFormat(c.Overlay.TranscriptFormat); !ok {
		errs = append(errs, fmt.Errorf("overlay.transcript_format %q", c.Overlay.TranscriptFormat))
	}
	if _, err := access.ParseDisplay(c.Access.Display); err != nil {
		errs = append(errs, err)
	}
	if c.Access.FreePages < 0 {
		errs = append(errs, errors.New("access.free_pages must not be negative"))
	}
	if !(c.Render.DefaultScale > 0) {
		errs = append(errs, errors.New("render.default_scale must be positive"))
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
