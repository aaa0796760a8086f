package crawler

import (
	"time"
)

// ArticleType classifies an opinion article by its layout.
type ArticleType string

// Article type values.
const (
	ArticleTypeStandard ArticleType = "Standard Article"
	ArticleTypeGallery  ArticleType = "Gallery / Photo Article"
)

// Content sentinels returned in place of an empty article body.
const (
	NoContentSentinel     = "⚠️ No meaningful textual content detected"
	ContentFailedSentinel = "⚠️ Content extraction failed"
)

// TranslationFailed is recorded in a report row when a title could not be translated.
const TranslationFailed = "Translation Failed"

// BrowserTarget identifies one browser/device configuration on the grid.
type BrowserTarget struct {
	BrowserName    string `mapstructure:"browser_name" json:"browser_name"`
	BrowserVersion string `mapstructure:"browser_version" json:"browser_version"`
	OS             string `mapstructure:"os" json:"os,omitempty"`
	OSVersion      string `mapstructure:"os_version" json:"os_version,omitempty"`
	DeviceName     string `mapstructure:"device_name" json:"device_name,omitempty"`
	SessionName    string `mapstructure:"session_name" json:"session_name"`
	BuildName      string `mapstructure:"build_name" json:"build_name"`
}

// Label returns the human-readable session label.
func (t BrowserTarget) Label() string {
	if t.SessionName != "" {
		return t.SessionName
	}
	if t.DeviceName != "" {
		return t.DeviceName
	}
	return t.BrowserName + " - " + t.OS
}

// IsMobile reports whether the target is a real device rather than a desktop OS.
func (t BrowserTarget) IsMobile() bool {
	return t.DeviceName != ""
}

// Credentials carries the grid account used to open every session.
type Credentials struct {
	Username  string
	AccessKey string
}

// ArticleCandidate is a discovered article URL awaiting detail extraction.
type ArticleCandidate struct {
	URL      string
	Position int
}

// ArticleDetail is the immutable result of extracting one article.
type ArticleDetail struct {
	Title    string
	Content  string
	ImageURL string
	Type     ArticleType
}

// HasImage reports whether a cover image URL was captured.
func (d ArticleDetail) HasImage() bool {
	return d.ImageURL != ""
}

// ReportRow is one processed article in a SessionReport.
type ReportRow struct {
	Index   int         `json:"index"`
	TitleES string      `json:"title_es"`
	TitleEN string      `json:"title_en"`
	Content string      `json:"-"`
	Type    ArticleType `json:"article_type"`
	Image   string      `json:"image_url,omitempty"`
}

// Translated reports whether the row carries a real translation.
func (r ReportRow) Translated() bool {
	return r.TitleEN != "" && r.TitleEN != TranslationFailed
}

// SessionStatus is the terminal state of a session.
type SessionStatus string

// Session status values.
const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusSucceeded SessionStatus = "succeeded"
	SessionStatusFailed    SessionStatus = "failed"
)

// SessionReport collects the rows produced by one BrowserTarget run.
type SessionReport struct {
	RunID         string         `json:"run_id"`
	SessionID     string         `json:"session_id"`
	Target        BrowserTarget  `json:"target"`
	Status        SessionStatus  `json:"status"`
	ErrorText     string         `json:"error_text,omitempty"`
	Started       time.Time      `json:"started_at"`
	Finished      time.Time      `json:"finished_at"`
	Rows          []ReportRow    `json:"rows"`
	RepeatedWords map[string]int `json:"repeated_words"`
}

// TranslatedTitles returns the successful translations in discovery order.
func (r SessionReport) TranslatedTitles() []string {
	out := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		if row.Translated() {
			out = append(out, row.TitleEN)
		}
	}
	return out
}
