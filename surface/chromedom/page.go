package chromedom

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/domcanvas/surface"
)

//go:embed canvas.js
var canvasJS []byte

const bindingName = "__domcanvas_binding"

// Page is a live Chrome page implementing surface.Surface. All node refs
// are minted and resolved by the injected agent; the Go side never holds
// CDP node ids.
type Page struct {
	page   *rod.Page
	url    string
	cfg    Config
	logger *slog.Logger
	gate   surface.Gate

	mu     sync.Mutex
	queue  *surface.Queue
	closed bool
}

var _ surface.Surface = (*Page)(nil)

// Open creates a page on the manager's browser, navigates it and injects
// the canvas agent.
func Open(ctx context.Context, mgr *Manager, pageURL string) (*Page, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("chromedom: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth == LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("chromedom: create page: %w", err)
	}

	p := &Page{page: page, url: pageURL, cfg: mgr.cfg, logger: mgr.cfg.Logger}
	if err := p.navigate(ctx, pageURL); err != nil {
		page.Close()
		return nil, err
	}
	return p, nil
}

// Navigate loads a different document in the page. Every previously minted
// ref is dead afterwards.
func (p *Page) Navigate(ctx context.Context, pageURL string) error {
	if err := p.navigate(ctx, pageURL); err != nil {
		return err
	}
	p.deliver([]surface.Record{{Op: surface.OpReset}})
	return nil
}

func (p *Page) navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavTimeout)
	defer cancel()

	if err := p.page.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("chromedom: navigate %s: %w", pageURL, err)
	}
	if err := p.page.Context(navCtx).WaitLoad(); err != nil {
		p.logger.Warn("chromedom: wait load timeout", "url", pageURL, "error", err)
	}
	p.url = pageURL
	return p.inject(ctx)
}

// inject installs the binding and the agent script. The agent is a no-op
// when already present.
func (p *Page) inject(ctx context.Context) error {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(p.page); err != nil {
		p.logger.Warn("chromedom: add binding failed (may already exist)", "error", err)
	}
	if len(p.cfg.StyleProps) > 0 {
		props, _ := json.Marshal(p.cfg.StyleProps)
		if _, err := p.page.Context(ctx).Eval(fmt.Sprintf("window.__domcanvas_styleprops = %s;", props)); err != nil {
			p.logger.Warn("chromedom: set style props failed", "error", err)
		}
	}
	if _, err := p.page.Context(ctx).Eval(string(canvasJS)); err != nil {
		return fmt.Errorf("chromedom: inject agent: %w", err)
	}
	return nil
}

// Snapshot returns the document body subtree.
func (p *Page) Snapshot(ctx context.Context) (*surface.Node, error) {
	return p.snapshot(ctx, "")
}

// SnapshotFrom returns the subtree rooted at ref.
func (p *Page) SnapshotFrom(ctx context.Context, ref string) (*surface.Node, error) {
	if ref == "" {
		return nil, fmt.Errorf("chromedom: snapshot from: empty ref")
	}
	return p.snapshot(ctx, ref)
}

func (p *Page) snapshot(ctx context.Context, ref string) (*surface.Node, error) {
	res, err := p.page.Context(ctx).Eval(`(ref) => window.__domcanvas.snapshotJSON(ref)`, ref)
	if err != nil {
		return nil, fmt.Errorf("chromedom: snapshot: %w", err)
	}
	payload := res.Value.Str()
	if payload == "" {
		if ref == "" {
			return nil, fmt.Errorf("chromedom: snapshot: no document body")
		}
		return nil, fmt.Errorf("chromedom: ref %s: %w", ref, surface.ErrDetached)
	}
	var node surface.Node
	if err := json.Unmarshal([]byte(payload), &node); err != nil {
		return nil, fmt.Errorf("chromedom: decode snapshot: %w", err)
	}
	return &node, nil
}

// Apply executes reconciler writes in-page. The agent runs the whole batch
// under its own suspension and drains the generated mutation records
// before lifting it.
func (p *Page) Apply(ctx context.Context, writes []surface.Write) error {
	if len(writes) == 0 {
		return nil
	}
	payload, err := json.Marshal(writes)
	if err != nil {
		return fmt.Errorf("chromedom: encode writes: %w", err)
	}
	res, err := p.page.Context(ctx).Eval(`(w) => window.__domcanvas.apply(w)`, string(payload))
	if err != nil {
		return fmt.Errorf("chromedom: apply: %w", err)
	}
	if msg := res.Value.Str(); msg != "" {
		if strings.HasPrefix(msg, "detached") {
			return fmt.Errorf("chromedom: apply: %s: %w", msg, surface.ErrDetached)
		}
		return fmt.Errorf("chromedom: apply: %s", msg)
	}
	return nil
}

// Watch binds q as the record sink and starts the binding and lifecycle
// listeners.
func (p *Page) Watch(ctx context.Context, q *surface.Queue) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("chromedom: watch: page closed")
	}
	p.queue = q
	p.mu.Unlock()

	go p.listenBinding(ctx)
	go p.listenLifecycle(ctx)
	return nil
}

// listenBinding receives record payloads from the agent via
// Runtime.bindingCalled.
func (p *Page) listenBinding(ctx context.Context) {
	p.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		records, err := decodeRecords(e.Payload)
		if err != nil {
			p.logger.Warn("chromedom: parse binding payload", "error", err)
			return
		}
		p.deliver(records)
	})()
}

// listenLifecycle re-injects the agent after full navigations, which
// destroy the page's JS world and every minted ref, and forces a resync.
func (p *Page) listenLifecycle(ctx context.Context) {
	proto.PageEnable{}.Call(p.page)
	p.page.Context(ctx).EachEvent(func(e *proto.PageLoadEventFired) {
		if err := p.inject(ctx); err != nil {
			p.logger.Error("chromedom: re-inject after navigation", "error", err)
			return
		}
		p.deliver([]surface.Record{{Op: surface.OpReset}})
		p.logger.Info("chromedom: document reloaded", "url", p.url)
	})()
}

func (p *Page) deliver(records []surface.Record) {
	if p.gate.Suspended() {
		return
	}
	p.mu.Lock()
	q := p.queue
	closed := p.closed
	p.mu.Unlock()
	if q == nil || closed {
		return
	}
	for _, rec := range records {
		q.Add(rec)
	}
}

// Suspend brackets caller-originated writes across several Apply calls.
// The in-page counter is raised too so records queued by the observer
// while suspended are discarded at the source.
func (p *Page) Suspend() {
	p.gate.Suspend()
	if _, err := p.page.Eval(`() => window.__domcanvas.suspend()`); err != nil {
		p.logger.Debug("chromedom: suspend eval failed", "error", err)
	}
}

func (p *Page) Resume() {
	if _, err := p.page.Eval(`() => window.__domcanvas.resume()`); err != nil {
		p.logger.Debug("chromedom: resume eval failed", "error", err)
	}
	p.gate.Resume()
}

// HTML serialises the current document as outer HTML.
func (p *Page) HTML(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("chromedom: get html: %w", err)
	}
	return res.Value.Str(), nil
}

// URL returns the page's current URL.
func (p *Page) URL() string { return p.url }

func (p *Page) Close() error {
	p.mu.Lock()
	p.closed = true
	p.queue = nil
	p.mu.Unlock()
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}

func decodeRecords(payload string) ([]surface.Record, error) {
	var records []surface.Record
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, err
	}
	return records, nil
}
