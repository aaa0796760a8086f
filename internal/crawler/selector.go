package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SelectorKind distinguishes the query language of a Selector.
type SelectorKind int

// Supported selector languages.
const (
	KindCSS SelectorKind = iota
	KindXPath
)

// Selector is a DOM query in CSS or XPath form.
type Selector struct {
	Kind  SelectorKind
	Query string
}

// CSS builds a CSS selector.
func CSS(query string) Selector {
	return Selector{Kind: KindCSS, Query: query}
}

// XPath builds an XPath selector.
func XPath(query string) Selector {
	return Selector{Kind: KindXPath, Query: query}
}

// ContainsText matches tag elements whose string value contains text.
func ContainsText(tag, text string) Selector {
	return XPath(fmt.Sprintf("//%s[contains(., %s)]", tag, xpathLiteral(text)))
}

func (s Selector) String() string {
	if s.Kind == KindXPath {
		return "xpath:" + s.Query
	}
	return "css:" + s.Query
}

// xpathLiteral quotes text for XPath 1.0, which has no escape sequences.
func xpathLiteral(text string) string {
	if !strings.Contains(text, "'") {
		return "'" + text + "'"
	}
	if !strings.Contains(text, `"`) {
		return `"` + text + `"`
	}
	parts := strings.Split(text, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Finder is anything that can look up a single element: a Session or an Element.
type Finder interface {
	Find(ctx context.Context, sel Selector) (Element, error)
}

// FirstMatch tries each selector in order and returns the first element found.
// It returns ErrNotFound when every selector misses; any other lookup error
// aborts the chain.
func FirstMatch(ctx context.Context, scope Finder, selectors ...Selector) (Element, Selector, error) {
	for _, sel := range selectors {
		el, err := scope.Find(ctx, sel)
		switch {
		case err == nil:
			return el, sel, nil
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return nil, sel, fmt.Errorf("find %s: %w", sel, err)
		}
	}
	return nil, Selector{}, ErrNotFound
}
