package report

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const defaultPDFTimeout = 30 * time.Second

// Paper sizes in inches, width by height in portrait.
type Paper struct {
	Name          string
	Width, Height float64
}

var (
	PaperA4     = Paper{Name: "a4", Width: 8.27, Height: 11.69}
	PaperLetter = Paper{Name: "letter", Width: 8.5, Height: 11}
)

func ParsePaper(name string) (Paper, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "a4":
		return PaperA4, nil
	case "letter":
		return PaperLetter, nil
	}
	return Paper{}, fmt.Errorf("unknown paper size %q (want a4 or letter)", name)
}

// PrintOptions control page layout. The idea table has nine columns, so
// landscape is worth offering for long titles.
type PrintOptions struct {
	Paper     Paper
	Landscape bool
	// Footer is printed at the bottom left of every page, next to the page
	// counter. Plain text.
	Footer string
}

// PrintOptionsFor is the layout used for a saved run: the run id goes in
// the footer so loose pages can be traced back.
func PrintOptionsFor(runID string, paper Paper, landscape bool) PrintOptions {
	footer := "Idea Synthesis Report"
	if runID != "" {
		footer += " · run " + runID
	}
	return PrintOptions{Paper: paper, Landscape: landscape, Footer: footer}
}

func printParams(o PrintOptions) *page.PrintToPDFParams {
	paper := o.Paper
	if paper.Width == 0 || paper.Height == 0 {
		paper = PaperA4
	}
	footer := `<div style="width:100%;display:flex;justify-content:space-between;font-size:8px;color:#666;padding:0 0.45in;">` +
		`<span>` + html.EscapeString(o.Footer) + `</span>` +
		`<span>Page <span class="pageNumber"></span> of <span class="totalPages"></span></span></div>`
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithLandscape(o.Landscape).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate(`<div></div>`).
		WithFooterTemplate(footer).
		WithPaperWidth(paper.Width).
		WithPaperHeight(paper.Height).
		WithMarginTop(0.5).
		WithMarginBottom(0.75).
		WithMarginLeft(0.45).
		WithMarginRight(0.45)
}

// ChromiumPDFRenderer prints rendered HTML through a headless Chromium.
type ChromiumPDFRenderer struct {
	chromePath string
	timeout    time.Duration
	print      PrintOptions
}

// NewChromiumPDFRenderer uses chromePath when set, otherwise the first
// Chromium found on PATH or in the usual install locations.
func NewChromiumPDFRenderer(chromePath string, opts PrintOptions) *ChromiumPDFRenderer {
	if chromePath == "" {
		chromePath = detectChromePath(chromeBinaries, chromeInstallPaths)
	}
	return &ChromiumPDFRenderer{chromePath: chromePath, timeout: defaultPDFTimeout, print: opts}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, htmlDoc string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, opts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			out, _, err := printParams(r.print).Do(ctx)
			pdf = out
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf with %s: %w", chromeLabel(r.chromePath), err)
	}
	return pdf, nil
}

func chromeLabel(path string) string {
	if path == "" {
		return "default chromium"
	}
	return path
}

var chromeBinaries = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"}

var chromeInstallPaths = []string{
	"/usr/bin/chromium-browser",
	"/usr/bin/chromium",
	"/usr/bin/google-chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

// detectChromePath prefers a binary on PATH over fixed install locations.
// Empty means chromedp falls back to its own search.
func detectChromePath(binaries, installPaths []string) string {
	for _, name := range binaries {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	for _, p := range installPaths {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}
