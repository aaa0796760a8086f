package crawler

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// captionPattern matches all-caps labels such as section kickers.
var captionPattern = regexp.MustCompile(`^[A-Z\s]{5,}$`)

// FilterParagraphs keeps trimmed paragraphs longer than minChars that are not
// upper-case captions.
func FilterParagraphs(texts []string, minChars int) []string {
	kept := make([]string, 0, len(texts))
	for _, raw := range texts {
		text := strings.TrimSpace(raw)
		if utf8.RuneCountInString(text) <= minChars {
			continue
		}
		if captionPattern.MatchString(text) {
			continue
		}
		kept = append(kept, text)
	}
	return kept
}

// ChooseContent joins the surviving paragraphs, falling back to the standfirst
// and then to NoContentSentinel. The result is never empty.
func ChooseContent(paragraphs []string, standfirst string, minStandfirst int) string {
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n\n")
	}
	summary := strings.TrimSpace(standfirst)
	if utf8.RuneCountInString(summary) > minStandfirst {
		return summary
	}
	return NoContentSentinel
}

// ExtractContent reads the article body from the current page.
func (p *Pipeline) ExtractContent(ctx context.Context) string {
	ctx, cancel := p.boundedRead(ctx)
	defer cancel()
	nodes, err := p.session.FindAll(ctx, p.cfg.Paragraphs)
	if err != nil {
		p.logger.Warn("Content extraction issue", zap.Error(err))
		return ContentFailedSentinel
	}
	texts := make([]string, 0, len(nodes))
	for _, node := range nodes {
		text, err := node.Text(ctx)
		if err != nil {
			p.logger.Warn("Content extraction issue", zap.Error(err))
			return ContentFailedSentinel
		}
		texts = append(texts, text)
	}

	paragraphs := FilterParagraphs(texts, p.cfg.MinParagraphChars)
	if len(paragraphs) > 0 {
		p.logger.Info("Extracted paragraphs", zap.Int("count", len(paragraphs)))
		return ChooseContent(paragraphs, "", p.cfg.MinStandfirstLen)
	}

	standfirst := p.readStandfirst(ctx)
	content := ChooseContent(nil, standfirst, p.cfg.MinStandfirstLen)
	if content != NoContentSentinel {
		p.logger.Info("Using standfirst summary", zap.String("selector", p.cfg.Standfirst.String()))
	}
	return content
}

func (p *Pipeline) readStandfirst(ctx context.Context) string {
	nodes, err := p.session.FindAll(ctx, p.cfg.Standfirst)
	if err != nil || len(nodes) == 0 {
		return ""
	}
	text, err := nodes[0].Text(ctx)
	if err != nil {
		p.logger.Warn("Standfirst read failed", zap.Error(err))
		return ""
	}
	return text
}
