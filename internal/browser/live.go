// CLAUDE:SUMMARY Forwards pointer, key and scroll events from a live tab to its zap session through a CDP binding.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/darkzap/zap"
)

const bindingName = "__darkzapEvent"

// toggleEvent is sent by the Alt+Z hotkey. It is not a session event.
const toggleEvent zap.EventType = "toggle"

// listenScript forwards page events while zap mode is on. Pointer moves are
// coalesced to one per animation frame; events on the overlay stay with the
// overlay.
const listenScript = `() => {
	if (window.__darkzapListening) return;
	window.__darkzapListening = true;
	const send = (ev) => { if (window.` + bindingName + `) window.` + bindingName + `(JSON.stringify(ev)); };
	const inOverlay = (e) => e.target && e.target.closest && e.target.closest("#` + OverlayID + `");
	let pending = null;
	document.addEventListener("pointermove", (e) => {
		if (!window.__darkzapActive || inOverlay(e)) return;
		const first = pending === null;
		pending = {type: "pointermove", x: e.clientX, y: e.clientY};
		if (first) requestAnimationFrame(() => { send(pending); pending = null; });
	}, true);
	document.addEventListener("click", (e) => {
		if (!window.__darkzapActive || inOverlay(e)) return;
		e.preventDefault();
		e.stopPropagation();
		send({type: "click", x: e.clientX, y: e.clientY});
	}, true);
	document.addEventListener("keydown", (e) => {
		if (e.altKey && e.code === "KeyZ") { send({type: "toggle"}); return; }
		if (window.__darkzapActive && e.key === "Escape") send({type: "keydown", key: e.key});
	}, true);
	window.addEventListener("scroll", () => {
		if (window.__darkzapActive) send({type: "scroll"});
	}, true);
}`

// Dispatcher is the part of zap.Host a live page feeds.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string, ev zap.Event) (zap.Status, error)
	Toggle(id string) (bool, error)
}

func decodeEvent(payload string) (zap.Event, error) {
	var ev zap.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("browser: decode event: %w", err)
	}
	if ev.Type == "" {
		return ev, errors.New("browser: decode event: missing type")
	}
	return ev, nil
}

// Forward installs the page listeners and delivers their events to page id
// of d until ctx is done. Events are queued so CDP calls made by the session
// never run inside the event callback.
func (p *Page) Forward(ctx context.Context, d Dispatcher, id string) error {
	page := p.tab.Page.Context(ctx)
	events := make(chan zap.Event, 64)

	wait := page.EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		ev, err := decodeEvent(e.Payload)
		if err != nil {
			p.logger.Warn("browser: bad page event", "page", id, "error", err)
			return
		}
		select {
		case events <- ev:
		default:
			p.logger.Warn("browser: event queue full, dropping", "page", id, "type", ev.Type)
		}
	})
	go wait()

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		return fmt.Errorf("browser: add binding: %w", err)
	}
	if _, err := page.Eval(listenScript); err != nil {
		return fmt.Errorf("browser: install listeners: %w", err)
	}
	p.logger.Info("browser: forwarding events", "page", id, "url", p.tab.PageURL)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			p.deliver(ctx, d, id, ev)
		}
	}
}

func (p *Page) deliver(ctx context.Context, d Dispatcher, id string, ev zap.Event) {
	switch ev.Type {
	case toggleEvent:
		on, err := d.Toggle(id)
		if err != nil {
			p.logger.Warn("browser: toggle failed", "page", id, "error", err)
			return
		}
		p.logger.Debug("browser: zap mode toggled", "page", id, "active", on)
		return
	case zap.Scroll:
		// The browser already scrolled; only the rects are stale.
		if err := p.Refresh(ctx); err != nil {
			p.logger.Warn("browser: refresh failed", "page", id, "error", err)
		}
		ev.DX, ev.DY = 0, 0
	}
	if _, err := d.Dispatch(ctx, id, ev); err != nil {
		p.logger.Warn("browser: dispatch failed", "page", id, "type", ev.Type, "error", err)
	}
}
