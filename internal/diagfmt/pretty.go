package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"loom/internal/diag"
	"loom/internal/source"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow, color.Bold)
	infoColor  = color.New(color.FgCyan)
	noteColor  = color.New(color.FgBlue)
	fixColor   = color.New(color.FgGreen)
)

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
// <path>:<line>:<col>: <SEV> <CODE>: <Message>
// затем контекст строки с подчёркиванием ^~~~ по Span, затем Notes с аналогичным форматом.
// Цвет включается опцией.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	p := prettyPrinter{w: w, fs: fs, opts: opts}
	for i, d := range bag.Items() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		p.printDiagnostic(d)
	}
}

type prettyPrinter struct {
	w    io.Writer
	fs   *source.FileSet
	opts PrettyOpts
}

func (p *prettyPrinter) printDiagnostic(d diag.Diagnostic) {
	start, end := p.fs.Resolve(d.Primary)
	fmt.Fprintf(p.w, "%s:%d:%d: %s %s: %s\n",
		p.path(d.Primary.File), start.Line, start.Col,
		p.severity(d.Severity), d.Code.ID(), d.Message)

	p.printSource(d.Primary, start, end)

	if p.opts.ShowNotes {
		for _, n := range d.Notes {
			ns, _ := p.fs.Resolve(n.Span)
			fmt.Fprintf(p.w, "  %s %s:%d:%d: %s\n",
				p.paint(noteColor, "note:"), p.path(n.Span.File), ns.Line, ns.Col, n.Msg)
		}
	}

	if p.opts.ShowFixes {
		for i, f := range d.Fixes {
			fmt.Fprintf(p.w, "  %s %s\n", p.paint(fixColor, fmt.Sprintf("fix #%d:", i+1)), f.Title)
			for _, edit := range f.Edits {
				es, _ := p.fs.Resolve(edit.Span)
				fmt.Fprintf(p.w, "    apply=%q at %s:%d:%d\n",
					edit.NewText, p.path(edit.Span.File), es.Line, es.Col)
				if p.opts.ShowPreview {
					p.printPreview(edit)
				}
			}
		}
	}
}

// printSource renders the primary line with its neighbours and underlines the
// span. Nothing is printed when the span points past the file.
func (p *prettyPrinter) printSource(span source.Span, start, end source.LineCol) {
	f := p.fs.Get(span.File)

	lineCount := uint32(len(f.LineIdx)) + 1 //nolint:gosec
	if start.Line > lineCount {
		return
	}

	ctx := uint32(0)
	if p.opts.Context > 0 {
		ctx = uint32(p.opts.Context)
	}

	first := uint32(1)
	if start.Line > ctx {
		first = start.Line - ctx
	}
	last := min(start.Line+ctx, lineCount)

	gutter := len(fmt.Sprintf("%d", last))
	for ln := first; ln <= last; ln++ {
		text := f.GetLine(ln)
		fmt.Fprintf(p.w, "  %*d | %s\n", gutter, ln, p.clip(text))
		if ln == start.Line {
			fmt.Fprintf(p.w, "  %s | %s\n", strings.Repeat(" ", gutter), p.underline(text, start, end))
		}
	}
}

// underline builds the ^~~~ row for the start line. Columns are byte offsets
// into the line, so the display position is recomputed with runewidth.
func (p *prettyPrinter) underline(text string, start, end source.LineCol) string {
	startByte := int(start.Col) - 1
	if startByte > len(text) {
		startByte = len(text)
	}
	pad := runewidth.StringWidth(text[:startByte])

	endByte := len(text)
	if end.Line == start.Line && int(end.Col)-1 < endByte {
		endByte = int(end.Col) - 1
	}
	width := 1
	if endByte > startByte {
		width = runewidth.StringWidth(text[startByte:endByte])
		if width < 1 {
			width = 1
		}
	}

	row := strings.Repeat(" ", pad) + "^" + strings.Repeat("~", width-1)
	if p.opts.Width > 0 {
		row = runewidth.Truncate(row, int(p.opts.Width), "")
	}
	if p.opts.Color {
		errorColor.EnableColor()
		return strings.Repeat(" ", pad) + errorColor.Sprint(strings.TrimLeft(row, " "))
	}
	return row
}

func (p *prettyPrinter) printPreview(edit diag.FixEdit) {
	preview, err := buildFixEditPreview(p.fs, edit)
	if err != nil {
		return
	}
	fmt.Fprintf(p.w, "    preview:\n")
	for _, line := range preview.before {
		fmt.Fprintf(p.w, "      - %s\n", p.clip(line))
	}
	for _, line := range preview.after {
		fmt.Fprintf(p.w, "      + %s\n", p.clip(line))
	}
}

func (p *prettyPrinter) clip(text string) string {
	if p.opts.Width == 0 || runewidth.StringWidth(text) <= int(p.opts.Width) {
		return text
	}
	return runewidth.Truncate(text, int(p.opts.Width), "...")
}

func (p *prettyPrinter) path(id source.FileID) string {
	return renderPath(p.fs.Get(id), p.opts.PathMode, p.fs)
}

func (p *prettyPrinter) severity(sev diag.Severity) string {
	switch sev {
	case diag.SevError:
		return p.paint(errorColor, sev.String())
	case diag.SevWarning:
		return p.paint(warnColor, sev.String())
	default:
		return p.paint(infoColor, sev.String())
	}
}

func (p *prettyPrinter) paint(c *color.Color, s string) string {
	if !p.opts.Color {
		return s
	}
	c.EnableColor()
	return c.Sprint(s)
}

// renderPath is shared by the pretty, JSON and SARIF writers.
func renderPath(f *source.File, mode PathMode, fs *source.FileSet) string {
	switch mode {
	case PathModeAbsolute:
		return f.FormatPath("absolute", "")
	case PathModeRelative:
		return f.FormatPath("relative", fs.BaseDir())
	case PathModeBasename:
		return f.FormatPath("basename", "")
	default:
		return f.FormatPath("auto", "")
	}
}
