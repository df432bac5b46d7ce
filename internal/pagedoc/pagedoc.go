// Package pagedoc exposes a live Rod page as a locator.Document and, when
// the page allows it, as a locator.Notifier fed by an injected
// MutationObserver bridged through Runtime.addBinding.
package pagedoc

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/capwatch/caption"
	"github.com/hazyhaar/capwatch/internal/locator"
)

//go:embed caption_observer.js
var observerJS string

const bindingName = "__capwatch_binding"

// ErrNotifyUnsupported is returned by Subscribe when the page refuses the
// binding or the observer script.
var ErrNotifyUnsupported = errors.New("pagedoc: change notifications unsupported")

// Page adapts a *rod.Page.
type Page struct {
	page   *rod.Page
	logger *slog.Logger

	mu         sync.Mutex
	subscribed bool
}

// New wraps page. logger may be nil.
func New(page *rod.Page, logger *slog.Logger) *Page {
	if logger == nil {
		logger = slog.Default()
	}
	return &Page{page: page, logger: logger}
}

// QueryAll implements locator.Document.
func (p *Page) QueryAll(ctx context.Context, selector string) ([]locator.Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("pagedoc: query %q: %w", selector, err)
	}
	out := make([]locator.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out, nil
}

// Subscribe implements locator.Notifier. Only one subscription is active at a
// time; a second call returns an error.
//
// The binding survives reloads but the observer does not, so the observer is
// re-injected whenever the document is replaced or finishes loading again.
// If re-injection keeps failing the channel is closed and callers fall back
// to polling.
func (p *Page) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subscribed {
		return nil, nil, fmt.Errorf("pagedoc: already subscribed")
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(p.page); err != nil {
		return nil, nil, fmt.Errorf("%w: add binding: %v", ErrNotifyUnsupported, err)
	}
	if err := p.inject(ctx); err != nil {
		_ = proto.RuntimeRemoveBinding{Name: bindingName}.Call(p.page)
		return nil, nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	r := newRelay(p.inject, p.logger)
	wait := p.page.Context(subCtx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name == bindingName {
				r.changed()
			}
		},
		func(*proto.DOMDocumentUpdated) {
			r.reset()
		},
		func(*proto.PageLoadEventFired) {
			r.reset()
		},
	)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		wait()
	}()
	go func() {
		defer wg.Done()
		r.run(subCtx)
	}()
	p.subscribed = true

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			if _, err := p.page.Eval(`() => {
				if (window.__capwatch_observer) {
					window.__capwatch_observer.disconnect();
					window.__capwatch_observer = undefined;
				}
			}`); err != nil {
				p.logger.Debug("pagedoc: disconnect observer", "error", err)
			}
			if err := (proto.RuntimeRemoveBinding{Name: bindingName}).Call(p.page); err != nil {
				p.logger.Debug("pagedoc: remove binding", "error", err)
			}
			p.mu.Lock()
			p.subscribed = false
			p.mu.Unlock()
		})
	}

	p.logger.Debug("pagedoc: change observer installed")
	return r.out, unsubscribe, nil
}

// inject runs the observer script in the current document.
func (p *Page) inject(ctx context.Context) error {
	res, err := p.page.Context(ctx).Eval(observerJS)
	if err != nil {
		return fmt.Errorf("%w: inject observer: %v", ErrNotifyUnsupported, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: observer refused (no body or binding)", ErrNotifyUnsupported)
	}
	return nil
}

type element struct {
	el   *rod.Element
	once sync.Once
	id   caption.NodeID
}

// Identity uses the CDP backend node ID, which is stable for the lifetime of
// the DOM node regardless of how many times it is queried.
func (e *element) Identity() caption.NodeID {
	e.once.Do(func() {
		node, err := e.el.Describe(0, false)
		if err != nil || node == nil {
			e.id = caption.NodeID("object:" + string(e.el.Object.ObjectID))
			return
		}
		e.id = caption.NodeID(fmt.Sprintf("backend:%d", node.BackendNodeID))
	})
	return e.id
}

func (e *element) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", fmt.Errorf("pagedoc: element text: %w", err)
	}
	return text, nil
}
