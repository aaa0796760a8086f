package crawler

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Find when no element matches the selector.
var ErrNotFound = errors.New("element not found")

// Browser opens automation sessions on a grid or local browser.
type Browser interface {
	Open(ctx context.Context, target BrowserTarget) (Session, error)
}

// Session is one exclusively owned browser session. Implementations are not
// safe for concurrent use.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until the selector matches a visible element or ctx expires.
	WaitFor(ctx context.Context, sel Selector) (Element, error)
	// Find returns ErrNotFound when nothing matches; it does not wait.
	Find(ctx context.Context, sel Selector) (Element, error)
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
	CurrentURL(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Element is a handle to a node inside a Session's current document.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute returns "" when the attribute is absent.
	Attribute(ctx context.Context, name string) (string, error)
	Click(ctx context.Context) error
	Find(ctx context.Context, sel Selector) (Element, error)
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
}

// Translator turns Spanish text into English.
type Translator interface {
	TranslateToEnglish(ctx context.Context, text string) (string, error)
}

// ImageFetcher downloads cover images in the background. The returned channel
// is closed once the download finished, successfully or not.
type ImageFetcher interface {
	Submit(ctx context.Context, imageURL string, fileName string) <-chan struct{}
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ReportStore persists finalized session reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report SessionReport) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and session IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
