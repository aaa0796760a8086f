package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// errScopedXPath is returned for XPath lookups below an element, which the
// DOM search API cannot scope.
var errScopedXPath = errors.New("xpath selectors cannot be scoped to an element")

type session struct {
	taskCtx     context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
	navTimeout  time.Duration
	release     func()
	closeOnce   sync.Once
}

// run executes actions on the session's tab, bounded by ctx.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.taskCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ctxErr, err)
		}
		return err
	}
	return nil
}

func (s *session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()
	if err := s.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *session) WaitFor(ctx context.Context, sel crawler.Selector) (crawler.Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(sel.Query, &nodes, queryOption(sel), chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", sel, err)
	}
	if len(nodes) == 0 {
		return nil, crawler.ErrNotFound
	}
	return &element{session: s, node: nodes[0]}, nil
}

func (s *session) Find(ctx context.Context, sel crawler.Selector) (crawler.Element, error) {
	all, err := s.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, crawler.ErrNotFound
	}
	return all[0], nil
}

func (s *session) FindAll(ctx context.Context, sel crawler.Selector) ([]crawler.Element, error) {
	opts := []chromedp.QueryOption{chromedp.AtLeast(0)}
	if sel.Kind == crawler.KindXPath {
		opts = append(opts, chromedp.BySearch)
	} else {
		opts = append(opts, chromedp.ByQueryAll)
	}
	return s.nodes(ctx, sel, opts...)
}

func (s *session) nodes(ctx context.Context, sel crawler.Selector, opts ...chromedp.QueryOption) ([]crawler.Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(sel.Query, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("query %s: %w", sel, err)
	}
	out := make([]crawler.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{session: s, node: n})
	}
	return out, nil
}

func (s *session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return location, nil
}

// Close shuts the tab and browser down and frees the allocator. It is safe to
// call more than once.
func (s *session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		stop := forwardCancel(ctx, s.taskCancel)
		err = chromedp.Cancel(s.taskCtx)
		stop()
		s.taskCancel()
		s.allocCancel()
		s.release()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func queryOption(sel crawler.Selector) chromedp.QueryOption {
	if sel.Kind == crawler.KindXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

type element struct {
	session *session
	node    *cdp.Node
}

func (e *element) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.session.run(ctx, chromedp.Text(e.ids(), &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var (
		value string
		ok    bool
	)
	if err := e.session.run(ctx, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("read attribute %s: %w", name, err)
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

func (e *element) Click(ctx context.Context) error {
	if err := e.session.run(ctx, chromedp.Click(e.ids(), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
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

func (e *element) FindAll(ctx context.Context, sel crawler.Selector) ([]crawler.Element, error) {
	if sel.Kind == crawler.KindXPath {
		return nil, errScopedXPath
	}
	return e.session.nodes(ctx, sel, chromedp.ByQueryAll, chromedp.AtLeast(0), chromedp.FromNode(e.node))
}
