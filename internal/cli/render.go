package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joelkehle/ideasynth/internal/report"
)

type renderFlags struct {
	runID     string
	format    string
	output    string
	top       int
	paper     string
	landscape bool
}

type pdfRenderer interface {
	Render(ctx context.Context, htmlDoc string) ([]byte, error)
}

// newPDFRenderer is replaced in tests so no browser is needed.
var newPDFRenderer = func(chromePath string, opts report.PrintOptions) pdfRenderer {
	return report.NewChromiumPDFRenderer(chromePath, opts)
}

func RenderCmd(e *env) *cobra.Command {
	f := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a saved run as markdown, HTML, PDF or JSON",
		Long: `Render a saved run. Without --run the most recent run is used.

Formats:
  md    - markdown report (default)
  html  - standalone HTML page
  pdf   - printed through headless Chromium; requires --output
  json  - the stored run result

Examples:
  ideasynth render
  ideasynth render --format html --output report.html
  ideasynth render --run 3f2c... --format pdf --paper letter --landscape --output report.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.render(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.runID, "run", "", "run id (default latest)")
	fl.StringVar(&f.format, "format", "md", "output format: md, html, pdf, json")
	fl.StringVarP(&f.output, "output", "o", "", "output file (default stdout)")
	fl.IntVar(&f.top, "top", 0, "ideas per report section (default from config)")
	fl.StringVar(&f.paper, "paper", "a4", "pdf paper size: a4, letter")
	fl.BoolVar(&f.landscape, "landscape", false, "print the pdf in landscape")
	return cmd
}

func (e *env) render(cmd *cobra.Command, f *renderFlags) error {
	format := strings.ToLower(strings.TrimSpace(f.format))
	switch format {
	case "md", "markdown", "html", "pdf", "json":
	default:
		return fmt.Errorf("unknown format %q", f.format)
	}
	if format == "pdf" && f.output == "" {
		return errors.New("pdf output requires --output")
	}
	paper, err := report.ParsePaper(f.paper)
	if err != nil {
		return err
	}
	top := e.cfg.Top
	if cmd.Flags().Changed("top") {
		top = f.top
	}

	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	run, err := s.LoadRun(cmd.Context(), f.runID)
	if err != nil {
		return err
	}

	var body []byte
	switch format {
	case "md", "markdown":
		body = []byte(report.BuildMarkdown(run, top))
	case "json":
		body, err = json.MarshalIndent(run, "", "  ")
		if err != nil {
			return err
		}
		body = append(body, '\n')
	case "html", "pdf":
		doc, err := report.RenderHTML(run, top)
		if err != nil {
			return err
		}
		body = []byte(doc)
		if format == "pdf" {
			opts := report.PrintOptionsFor(run.RunID, paper, f.landscape)
			body, err = newPDFRenderer(e.cfg.ChromePath, opts).Render(cmd.Context(), doc)
			if err != nil {
				return err
			}
		}
	}
	return writeOutput(cmd.OutOrStdout(), f.output, body)
}

func writeOutput(stdout io.Writer, path string, body []byte) error {
	if path == "" {
		_, err := stdout.Write(body)
		return err
	}
	return os.WriteFile(path, body, 0o644)
}
