// Package report renders per-article blocks, the title translation table and
// the repeated-word summary for a finished session.
package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
	"github.com/JakeFAU/opinion-crawler/internal/wordfreq"
)

// TitleWidth is the fixed width of the title columns.
const TitleWidth = 44

// NoRepeatedWords is printed when no word crosses the repetition threshold.
const NoRepeatedWords = "No words repeated more than twice across translated titles."

const rule = "========================================"

// Printer writes session output. Each call renders into a buffer first and
// emits it with one Write, so concurrent sessions never interleave mid-block.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter returns a Printer writing to out, or to stdout when out is nil.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out}
}

// Article prints the block for one processed article.
func (p *Printer) Article(session string, row crawler.ReportRow) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n%s\nARTICLE %d (%s)\n%s\n", rule, row.Index, session, rule)
	fmt.Fprintf(&buf, "TITLE (ES): %s\n\n", row.TitleES)
	buf.WriteString("CONTENT (ES):\n")
	buf.WriteString(row.Content)
	fmt.Fprintf(&buf, "\n\nTITLE (EN): %s\n", row.TitleEN)
	return p.write(buf.Bytes())
}

// Summary prints the title table followed by the repeated-word analysis.
func (p *Printer) Summary(rep crawler.SessionReport) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n%s\nTITLE TRANSLATION TABLE (%s)\n%s\n\n", rule, rep.Target.Label(), rule)
	buf.WriteString(TitleTable(rep.Rows))
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "\n%s\nREPEATED WORD ANALYSIS (>2)\n%s\n\n", rule, rule)
	buf.WriteString(RepeatedWords(rep.RepeatedWords))
	return p.write(buf.Bytes())
}

func (p *Printer) write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.out.Write(b); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// TitleTable renders rows as a box-drawn table with fixed-width title columns.
// Longer titles are cut, shorter ones padded.
func TitleTable(rows []crawler.ReportRow) string {
	t := table.NewWriter()
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, WidthMin: 2},
		{Number: 2, WidthMin: TitleWidth, WidthMax: TitleWidth, WidthMaxEnforcer: text.Trim},
		{Number: 3, WidthMin: TitleWidth, WidthMax: TitleWidth, WidthMaxEnforcer: text.Trim},
	})
	t.AppendHeader(table.Row{"#", "Title (ES)", "Title (EN)"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.Index, oneLine(row.TitleES), oneLine(row.TitleEN)})
	}
	return t.Render()
}

// RepeatedWords renders one "word → count" line per entry, most frequent
// first, or NoRepeatedWords when the table is empty.
func RepeatedWords(counts map[string]int) string {
	entries := wordfreq.Sorted(counts)
	if len(entries) == 0 {
		return NoRepeatedWords + "\n"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s → %d\n", e.Word, e.Count)
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
