package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// query evaluates sel below scope.
func (s *session) query(scope *goquery.Selection, sel crawler.Selector) ([]crawler.Element, error) {
	var nodes []*html.Node
	switch sel.Kind {
	case crawler.KindXPath:
		for _, root := range scope.Nodes {
			found, err := htmlquery.QueryAll(root, sel.Query)
			if err != nil {
				return nil, fmt.Errorf("xpath %q: %w", sel.Query, err)
			}
			nodes = append(nodes, found...)
		}
	default:
		nodes = scope.Find(sel.Query).Nodes
	}
	out := make([]crawler.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{session: s, node: n})
	}
	return out, nil
}

type element struct {
	session *session
	node    *html.Node
}

func (e *element) selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(e.node).Selection
}

// Text mimics rendered text by collapsing whitespace runs.
func (e *element) Text(context.Context) (string, error) {
	return strings.Join(strings.Fields(e.selection().Text()), " "), nil
}

func (e *element) Attribute(_ context.Context, name string) (string, error) {
	value, _ := e.selection().Attr(name)
	return value, nil
}

func (e *element) Click(ctx context.Context) error {
	if e.node.Type != html.ElementNode || e.node.Data != "a" {
		return nil
	}
	href, ok := e.selection().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil
	}
	return e.session.follow(ctx, href)
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
	return e.session.query(e.selection(), sel)
}
