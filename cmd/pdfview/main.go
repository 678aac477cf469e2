// Command pdfview renders, inspects and serves document pages through the
// viewer core.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bnrm/pdfview/backend/mupdf"
	"github.com/bnrm/pdfview/config"
	"github.com/bnrm/pdfview/measure"
	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/ocr"
	_ "github.com/bnrm/pdfview/ocr/tesseract"
	"github.com/bnrm/pdfview/overlay"
	"github.com/bnrm/pdfview/recovery"
	"github.com/bnrm/pdfview/render"
	"github.com/bnrm/pdfview/source"
	"github.com/bnrm/pdfview/viewer"
)

const usage = `Usage: pdfview <command> [flags] <source>

Commands:
  render   rasterize one page to a PNG file
  text     print the text overlay of one page
  ocr      transcribe pages with Tesseract into the OCR store
  window   print the virtual window for a scroll position as JSON
  serve    run the HTTP host
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "pdfview: %v\n", err)
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// common flags shared by every subcommand.
type common struct {
	configPath string
	level      string
	page       int
	scale      float64
	rotate     int
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "JSON configuration file")
	fs.StringVar(&c.level, "log", "", "Log level override (debug, info, warn, error)")
	fs.IntVar(&c.page, "page", 1, "1-based page number")
	fs.Float64Var(&c.scale, "scale", 0, "Render scale (default from config)")
	fs.IntVar(&c.rotate, "rotate", 0, "Rotation in degrees, a multiple of 90")
}

func (c *common) build(stderr io.Writer) (*app, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.level != "" {
		cfg.Log.Level = c.level
	}
	if c.scale <= 0 {
		c.scale = cfg.Render.DefaultScale
	}
	log, err := newLogger(cfg, stderr)
	if err != nil {
		return nil, err
	}
	fetcher := source.NewFetcher(
		source.WithMaxBytes(cfg.Render.MaxDocumentBytes),
		source.WithTimeout(cfg.Render.FetchTimeout.Std()))
	return newApp(cfg, mupdf.NewOpener(fetcher), log)
}

func (c *common) request(src string) viewer.PageRequest {
	return viewer.PageRequest{
		Source:   src,
		Page:     c.page,
		Scale:    c.scale,
		Rotation: render.NormalizeRotation(c.rotate),
	}
}

func run(ctx context.Context, cmd string, args []string, stdout io.Writer) error {
	switch cmd {
	case "render":
		return runRender(ctx, args, stdout)
	case "text":
		return runText(ctx, args, stdout)
	case "ocr":
		return runOCR(ctx, args, stdout)
	case "window":
		return runWindow(ctx, args, stdout)
	case "serve":
		return runServe(ctx, args)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func parse(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", fmt.Errorf("%s: missing source", fs.Name())
	}
	return fs.Arg(0), nil
}

func runRender(ctx context.Context, args []string, stdout io.Writer) error {
	var c common
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	c.register(fs)
	out := fs.String("out", "", "Output PNG path (default page-<n>.png)")
	src, err := parse(fs, args)
	if err != nil {
		return err
	}
	a, err := c.build(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	img, err := a.viewer.Render(ctx, c.request(src))
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = fmt.Sprintf("page-%d.png", c.page)
	}
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %dx%d\n", path, img.Width, img.Height)
	return nil
}

func runText(ctx context.Context, args []string, stdout io.Writer) error {
	var c common
	fs := flag.NewFlagSet("text", flag.ContinueOnError)
	c.register(fs)
	asHTML := fs.Bool("html", false, "Print the overlay markup instead of plain text")
	search := fs.String("q", "", "Search term to highlight")
	doc := fs.String("doc", "", "Document id in the OCR store (default: source)")
	src, err := parse(fs, args)
	if err != nil {
		return err
	}
	a, err := c.build(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	req := c.request(src)
	handle, done, err := a.store.AcquireDocument(ctx, src)
	if err != nil {
		return err
	}
	size, err := handle.PageSize(req.Page)
	done()
	if err != nil {
		return err
	}
	// A container exactly the size of the raster.
	container := measure.Size{Width: size.Width * req.Scale, Height: size.Height * req.Scale}
	if req.Rotation == render.Rotate90 || req.Rotation == render.Rotate270 {
		container.Width, container.Height = container.Height, container.Width
	}
	layer, err := a.viewer.Overlay(ctx, overlay.Params{
		Request:    render.Request{Source: src, Page: req.Page, Scale: req.Scale, Rotation: req.Rotation},
		DocumentID: *doc,
		Container:  container,
		Search:     *search,
	})
	if err != nil {
		return err
	}
	if *asHTML {
		markup, err := layer.HTML()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, markup)
		return nil
	}
	fmt.Fprintln(stdout, layer.Text())
	if *search != "" {
		fmt.Fprintf(stdout, "-- %d match(es) for %q (%s)\n", layer.Matches, *search, layer.Mode)
	}
	return nil
}

func runOCR(ctx context.Context, args []string, stdout io.Writer) error {
	var c common
	fs := flag.NewFlagSet("ocr", flag.ContinueOnError)
	c.register(fs)
	pagesFlag := fs.String("pages", "", "Pages to transcribe, e.g. 1-3,7 (default: all)")
	langs := fs.String("lang", "ara+fra", "Tesseract languages joined by +")
	doc := fs.String("doc", "", "Document id in the OCR store (default: source)")
	psm := fs.Int("psm", 0, "Tesseract page segmentation mode, e.g. 4 for one column (default: automatic)")
	charset := fs.String("charset", "", "Only recognize these characters")
	src, err := parse(fs, args)
	if err != nil {
		return err
	}
	a, err := c.build(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	total, err := a.viewer.PageCount(ctx, src)
	if err != nil {
		return err
	}
	pages, err := parsePages(*pagesFlag, total)
	if err != nil {
		return err
	}
	id := *doc
	if id == "" {
		id = src
	}
	lenient := recovery.NewLenientStrategy()
	t := ocr.NewTranscriber(a.viewer.Rasterizer(), a.ocr,
		ocr.WithLogger(a.log),
		ocr.WithStrategy(lenient),
		ocr.WithInputOptions(
			ocr.WithLanguages(strings.Split(*langs, "+")...),
			ocr.WithSegmentation(*psm),
			ocr.WithCharset(*charset)))
	stored, err := t.Transcribe(ctx, src, id, pages)
	if err != nil {
		return err
	}
	a.viewer.Resolver().Forget(id)
	fmt.Fprintf(stdout, "transcribed %d/%d page(s) of %s\n", stored, len(pages), id)
	for _, e := range lenient.Errors() {
		a.log.Warn("page skipped", observability.Error("error", e))
	}
	if a.db == nil {
		a.log.Warn("no storage.sqlite_path configured; transcripts were kept in memory only")
	}
	return nil
}

// parsePages reads "1-3,7"; an empty list selects every page.
func parsePages(list string, total int) ([]int, error) {
	if strings.TrimSpace(list) == "" {
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}
	var pages []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("bad page range %q", part)
		}
		to := from
		if isRange {
			if to, err = strconv.Atoi(hi); err != nil || to < from {
				return nil, fmt.Errorf("bad page range %q", part)
			}
		}
		for p := from; p <= to; p++ {
			pages = append(pages, p)
		}
	}
	return pages, nil
}

func runWindow(ctx context.Context, args []string, stdout io.Writer) error {
	var c common
	fs := flag.NewFlagSet("window", flag.ContinueOnError)
	c.register(fs)
	scroll := fs.Float64("scroll", 0, "Scroll offset in pixels")
	height := fs.Float64("height", 900, "Viewport height in pixels")
	zoom := fs.Float64("zoom", 100, "Zoom in percent")
	src, err := parse(fs, args)
	if err != nil {
		return err
	}
	a, err := c.build(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	// No prefetch from the CLI: scale 0 disables it.
	out, err := a.window(ctx, src, *scroll, *height, *zoom, 0)
	if err != nil {
		return err
	}
	writeJSONTo(stdout, out)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	var c common
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	c.register(fs)
	addr := fs.String("addr", ":8080", "Listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := c.build(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newServer(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	a.log.Info("serving", observability.String("addr", *addr))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}
