package report_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
	"github.com/JakeFAU/opinion-crawler/internal/report"
)

func TestTitleTableFixedWidth(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("palabra ", 10)
	out := report.TitleTable([]crawler.ReportRow{
		{Index: 1, TitleES: long, TitleEN: "Short"},
		{Index: 3, TitleES: "Corto", TitleEN: crawler.TranslationFailed},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "┌"))
	assert.Contains(t, lines[1], "Title (ES)")
	width := len([]rune(lines[0]))
	for _, line := range lines {
		assert.Len(t, []rune(line), width, line)
	}
	assert.NotContains(t, out, long)
	assert.Contains(t, out, "Translation Failed")
	assert.Contains(t, lines[4], " 3 │")
}

func TestRepeatedWords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, report.NoRepeatedWords+"\n", report.RepeatedWords(nil))
	assert.Equal(t, "the → 4\ndog → 3\n", report.RepeatedWords(map[string]int{"dog": 3, "the": 4}))
}

func TestPrinterArticleAndSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := report.NewPrinter(&buf)
	row := crawler.ReportRow{Index: 2, TitleES: "Hola", TitleEN: "Hello", Content: "Texto"}
	require.NoError(t, p.Article("Chrome - Windows", row))

	out := buf.String()
	assert.Contains(t, out, "ARTICLE 2 (Chrome - Windows)")
	assert.Contains(t, out, "TITLE (ES): Hola\n\nCONTENT (ES):\nTexto\n\nTITLE (EN): Hello\n")

	buf.Reset()
	require.NoError(t, p.Summary(crawler.SessionReport{
		Target: crawler.BrowserTarget{SessionName: "iPhone 14"},
		Rows:   []crawler.ReportRow{row},
	}))
	out = buf.String()
	assert.Contains(t, out, "TITLE TRANSLATION TABLE (iPhone 14)")
	assert.Contains(t, out, "REPEATED WORD ANALYSIS (>2)")
	assert.Contains(t, out, report.NoRepeatedWords)
}

func TestPrinterWritesBlocksAtomically(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := report.NewPrinter(&buf)
	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = p.Article("s", crawler.ReportRow{Index: n, TitleES: "t", TitleEN: "t", Content: "c"})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, strings.Count(buf.String(), "CONTENT (ES):\nc\n\nTITLE (EN): t\n"))
}
