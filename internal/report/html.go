package report

import (
	_ "embed"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joelkehle/ideasynth/internal/pipeline"
)

//go:embed style.css
var styleCSS string

var (
	rePageBreakHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*(How This Report Works|Idea Details)\s*</h2>`)
	reIdeaHeading      = regexp.MustCompile(`<h3([^>]*)>\s*([0-9]+\.\s[^<]*)\s*</h3>`)
)

// RenderHTML renders the run's markdown report into a standalone HTML page
// with a metadata header. Raw HTML inside idea text is never passed through.
func RenderHTML(run pipeline.RunResult, top int) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(BuildMarkdown(run, top)), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Idea Synthesis Report</title>" +
		"<style>" + styleCSS + "</style></head><body>" +
		"<div class='report-wrap'><section class='report-viewer'><div class='report-header'>" +
		"<div class='report-meta'>" + buildMetaHTML(run) + "</div>" +
		"<div class='report-badges'>" + buildBadgeHTML(run) + "</div>" +
		"</div><div class='report-html'>" + applyPrintLayoutHooks(content.String()) + "</div></section></div>" +
		"</body></html>", nil
}

// applyPrintLayoutHooks starts the reference sections on a new page and
// tags numbered idea headings so print CSS can keep them with their body.
func applyPrintLayoutHooks(contentHTML string) string {
	out := rePageBreakHeading.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">$2</h2>`)
	return reIdeaHeading.ReplaceAllString(out, `<h3$1 data-idea-heading="true">$2</h3>`)
}

func buildMetaHTML(run pipeline.RunResult) string {
	var out strings.Builder
	if run.RunID != "" {
		out.WriteString("<div><strong>Run:</strong> " + html.EscapeString(run.RunID) + "</div>")
	}
	if f := run.Metadata.DomainFilter; f != "" {
		out.WriteString("<div><strong>Domain:</strong> " + html.EscapeString(f) + "</div>")
	}
	if completed := run.Metadata.CompletedAt; !completed.IsZero() {
		out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(completed.UTC().Format("January 2, 2006 at 3:04 PM MST")) + "</div>")
	}
	return out.String()
}

func buildBadgeHTML(run pipeline.RunResult) string {
	var out strings.Builder
	if m := run.Metadata.Mode; m != "" {
		class := "report-badge"
		if m == pipeline.ReportModeDegraded {
			class += " report-badge-warn"
		}
		out.WriteString("<span class='" + class + "'>" + html.EscapeString(string(m)) + "</span>")
	}
	if run.Metadata.AssistAvailable {
		out.WriteString("<span class='report-badge'>Generative assist</span>")
	}
	return out.String()
}
