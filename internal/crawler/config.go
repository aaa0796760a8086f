package crawler

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Default pipeline settings.
const (
	DefaultBaseURL        = "https://elpais.com/"
	DefaultSectionName    = "Opinión"
	DefaultSectionPath    = "/opinion"
	DefaultConsentText    = "Accept"
	DefaultWaitTimeout    = 10 * time.Second
	DefaultConsentTimeout = 10 * time.Second
	DefaultMaxArticles    = 5
	DefaultMinParagraph   = 80
	DefaultMinStandfirst  = 20
)

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// PipelineConfig holds the site layout and timing knobs for one pipeline.
type PipelineConfig struct {
	BaseURL        string
	SectionName    string
	SectionPath    string
	ConsentText    string
	WaitTimeout    time.Duration
	ConsentTimeout time.Duration
	MaxArticles    int

	ArticleBlock      Selector
	HeadlineLinks     []Selector
	Title             Selector
	Paragraphs        Selector
	Standfirst        Selector
	CoverImage        Selector
	GalleryMarkers    []Selector
	MinParagraphChars int
	MinStandfirstLen  int
}

// DefaultPipelineConfig returns the El País layout.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BaseURL:        DefaultBaseURL,
		SectionName:    DefaultSectionName,
		SectionPath:    DefaultSectionPath,
		ConsentText:    DefaultConsentText,
		WaitTimeout:    DefaultWaitTimeout,
		ConsentTimeout: DefaultConsentTimeout,
		MaxArticles:    DefaultMaxArticles,
		ArticleBlock:   CSS("article"),
		HeadlineLinks:  []Selector{CSS("h2 a"), CSS("h3 a")},
		Title:          CSS("h1"),
		Paragraphs:     CSS("article p"),
		Standfirst:     CSS(".a_st"),
		CoverImage:     CSS("figure img"),
		GalleryMarkers: []Selector{
			CSS(".gallery"),
			CSS(`[class*="galeria"]`),
			CSS("body.tpl-a-fotogaleria"),
		},
		MinParagraphChars: DefaultMinParagraph,
		MinStandfirstLen:  DefaultMinStandfirst,
	}
}

// Validate checks for obviously bad configuration combinations.
func (c PipelineConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	if strings.TrimSpace(c.SectionName) == "" {
		return fmt.Errorf("site.section_name must be set")
	}
	if strings.TrimSpace(c.SectionPath) == "" {
		return fmt.Errorf("site.section_path must be set")
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("scraper.wait_timeout must be > 0")
	}
	if c.ConsentTimeout <= 0 {
		return fmt.Errorf("scraper.consent_timeout must be > 0")
	}
	if c.MaxArticles <= 0 {
		return fmt.Errorf("scraper.max_articles must be > 0")
	}
	if len(c.HeadlineLinks) == 0 {
		return fmt.Errorf("at least one headline selector is required")
	}
	return nil
}

// sectionSegment is the path fragment every candidate URL must contain,
// e.g. "/opinion/".
func (c PipelineConfig) sectionSegment() string {
	return "/" + strings.Trim(c.SectionPath, "/") + "/"
}
