// Package crawlertest provides an in-memory crawler.Browser for tests.
//
// Pages are keyed by URL and map selectors to nodes, so a test declares
// exactly what each query returns instead of evaluating real HTML.
package crawlertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// Node is one fake DOM element.
type Node struct {
	Text     string
	Attrs    map[string]string
	Children map[crawler.Selector][]*Node
	// Href is followed when the node is clicked.
	Href     string
	TextErr  error
	ClickErr error
}

// Page is one fake document.
type Page struct {
	Nodes map[crawler.Selector][]*Node
	// FindErr makes FindAll/Find fail for the given selector.
	FindErr map[crawler.Selector]error
}

// Browser serves Pages to every session it opens.
type Browser struct {
	Pages map[string]*Page
	// OpenErr fails Open for the target with the matching label.
	OpenErr map[string]error
	// PanicOn panics inside Navigate for sessions of the matching label.
	PanicOn map[string]bool

	mu       sync.Mutex
	sessions []*Session
}

// Open implements crawler.Browser.
func (b *Browser) Open(_ context.Context, target crawler.BrowserTarget) (crawler.Session, error) {
	if err := b.OpenErr[target.Label()]; err != nil {
		return nil, err
	}
	s := &Session{browser: b, target: target}
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return s, nil
}

// Sessions returns the sessions opened so far.
func (b *Browser) Sessions() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Session, len(b.sessions))
	copy(out, b.sessions)
	return out
}

// Session is a fake crawler.Session.
type Session struct {
	browser *Browser
	target  crawler.BrowserTarget

	mu      sync.Mutex
	current string
	visited []string
	closed  bool
}

// Target returns the target the session was opened for.
func (s *Session) Target() crawler.BrowserTarget { return s.target }

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Visited returns every URL navigated to, in order.
func (s *Session) Visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

// Navigate implements crawler.Session.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.browser.PanicOn[s.target.Label()] {
		panic("fake browser crashed")
	}
	if _, ok := s.browser.Pages[url]; !ok {
		return fmt.Errorf("navigate %s: page not found", url)
	}
	s.mu.Lock()
	s.current = url
	s.visited = append(s.visited, url)
	s.mu.Unlock()
	return nil
}

func (s *Session) page() *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.browser.Pages[s.current]; ok {
		return p
	}
	return &Page{}
}

// WaitFor implements crawler.Session. A missing element blocks until ctx ends.
func (s *Session) WaitFor(ctx context.Context, sel crawler.Selector) (crawler.Element, error) {
	el, err := s.Find(ctx, sel)
	if err == nil {
		return el, nil
	}
	<-ctx.Done()
	return nil, fmt.Errorf("wait for %s: %w", sel, ctx.Err())
}

// Find implements crawler.Session.
func (s *Session) Find(ctx context.Context, sel crawler.Selector) (crawler.Element, error) {
	all, err := s.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, crawler.ErrNotFound
	}
	return all[0], nil
}

// FindAll implements crawler.Session.
func (s *Session) FindAll(_ context.Context, sel crawler.Selector) ([]crawler.Element, error) {
	p := s.page()
	if err := p.FindErr[sel]; err != nil {
		return nil, err
	}
	return s.wrap(p.Nodes[sel]), nil
}

// CurrentURL implements crawler.Session.
func (s *Session) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

// Close implements crawler.Session.
func (s *Session) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Session) wrap(nodes []*Node) []crawler.Element {
	out := make([]crawler.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{node: n, session: s})
	}
	return out
}

type element struct {
	node    *Node
	session *Session
}

func (e *element) Text(context.Context) (string, error) {
	if e.node.TextErr != nil {
		return "", e.node.TextErr
	}
	return e.node.Text, nil
}

func (e *element) Attribute(_ context.Context, name string) (string, error) {
	return e.node.Attrs[name], nil
}

func (e *element) Click(ctx context.Context) error {
	if e.node.ClickErr != nil {
		return e.node.ClickErr
	}
	if e.node.Href == "" {
		return nil
	}
	return e.session.Navigate(ctx, e.node.Href)
}

func (e *element) Find(ctx context.Context, sel crawler.Selector) (crawler.Element, error) {
	all, err := e.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, crawler.ErrNotFound
	}
	return all[0], nil
}

func (e *element) FindAll(_ context.Context, sel crawler.Selector) ([]crawler.Element, error) {
	return e.session.wrap(e.node.Children[sel]), nil
}

// Link builds a node whose href attribute is url.
func Link(text, url string) *Node {
	return &Node{Text: text, Href: url, Attrs: map[string]string{"href": url}}
}

// Block builds an article block with its headline link under sel.
func Block(sel crawler.Selector, link *Node) *Node {
	return &Node{Children: map[crawler.Selector][]*Node{sel: {link}}}
}

// Text builds a text-only node.
func Text(text string) *Node {
	return &Node{Text: text}
}

// Image builds an img node with a src attribute.
func Image(src string) *Node {
	return &Node{Attrs: map[string]string{"src": src}}
}

// Article describes one article page served by Site.
type Article struct {
	URL        string
	Title      string
	Paragraphs []string
	Standfirst string
	Image      string
	Gallery    bool
}

// SectionURL is the section page Site links to from the home page.
func SectionURL(cfg crawler.PipelineConfig) string {
	return strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.SectionPath, "/") + "/"
}

// Site builds a home page, a section page listing articles with the primary
// headline selector, and one page per article.
func Site(cfg crawler.PipelineConfig, articles ...Article) map[string]*Page {
	section := SectionURL(cfg)
	pages := map[string]*Page{
		cfg.BaseURL: {Nodes: map[crawler.Selector][]*Node{
			crawler.CSS("body"): {Text("home")},
			crawler.ContainsText("button", cfg.ConsentText): {Text(cfg.ConsentText)},
			crawler.ContainsText("a", cfg.SectionName):      {Link(cfg.SectionName, section)},
		}},
	}

	blocks := make([]*Node, 0, len(articles))
	for _, a := range articles {
		blocks = append(blocks, Block(cfg.HeadlineLinks[0], Link(a.Title, a.URL)))
		pages[a.URL] = articlePage(cfg, a)
	}
	pages[section] = &Page{Nodes: map[crawler.Selector][]*Node{
		crawler.CSS("body"): {Text("section")},
		cfg.ArticleBlock:    blocks,
	}}
	return pages
}

func articlePage(cfg crawler.PipelineConfig, a Article) *Page {
	nodes := map[crawler.Selector][]*Node{
		cfg.Title: {Text(a.Title)},
	}
	for _, p := range a.Paragraphs {
		nodes[cfg.Paragraphs] = append(nodes[cfg.Paragraphs], Text(p))
	}
	if a.Standfirst != "" {
		nodes[cfg.Standfirst] = []*Node{Text(a.Standfirst)}
	}
	if a.Image != "" {
		nodes[cfg.CoverImage] = []*Node{Image(a.Image)}
	}
	if a.Gallery && len(cfg.GalleryMarkers) > 0 {
		nodes[cfg.GalleryMarkers[len(cfg.GalleryMarkers)-1]] = []*Node{Text("")}
	}
	return &Page{Nodes: nodes}
}
