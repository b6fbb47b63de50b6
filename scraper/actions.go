package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// consentSelectors are "accept" buttons of common cookie walls, Google's
// first.
var consentSelectors = []string{
	`button#L2AGLb`,
	`form[action*="consent.google"] button`,
	`button[aria-label="Accept all"]`,
	`button[aria-label="Alle akzeptieren"]`,
	`#onetrust-accept-btn-handler`,
	`button#didomi-notice-agree-button`,
	`.cc-allow`,
}

// builtinChallenge are challenge widgets that must never be stripped as
// overlays, whatever markers are configured.
var builtinChallenge = []string{
	`iframe[src*="recaptcha"]`,
	`iframe[src*="hcaptcha"]`,
	`iframe[src*="challenges.cloudflare.com"]`,
	`#challenge-form`,
	`.cf-turnstile`,
	`[id*="captcha"]`,
	`[class*="captcha"]`,
}

// challengeSelectors merges the configured CAPTCHA markers with the
// built-in challenge selectors, dropping duplicates.
func challengeSelectors(markers []string) []string {
	seen := make(map[string]struct{}, len(markers)+len(builtinChallenge))
	var out []string
	for _, list := range [][]string{builtinChallenge, markers} {
		for _, s := range list {
			if _, ok := seen[s]; ok || s == "" {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Click waits for selector, scrolls it into view and clicks it.
func (p *Page) Click(ctx context.Context, selector string) error {
	actionCtx, cancel := context.WithTimeout(ctx, p.selectorTimeout)
	defer cancel()

	el, err := p.page.Context(actionCtx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll %q into view: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// WaitVisible blocks until selector is rendered and visible.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	actionCtx, cancel := context.WithTimeout(ctx, p.selectorTimeout)
	defer cancel()

	el, err := p.page.Context(actionCtx).Element(selector)
	if err != nil {
		return categorizeError(err, fmt.Sprintf("element %q did not appear", selector))
	}
	if err := el.WaitVisible(); err != nil {
		return categorizeError(err, fmt.Sprintf("element %q not visible", selector))
	}
	return nil
}

// ScrollElement scrolls a scrollable container to its bottom. It returns
// false when the container does not exist.
func (p *Page) ScrollElement(ctx context.Context, selector string) (bool, error) {
	res, err := p.page.Context(ctx).Eval(`(sel) => {
		const el = document.querySelector(sel);
		if (!el) return false;
		el.scrollTop = el.scrollHeight;
		return true;
	}`, selector)
	if err != nil {
		return false, fmt.Errorf("scroll %q: %w", selector, err)
	}
	return res.Value.Bool(), nil
}

// ScrollToBottom scrolls the window to the end of the document so lazy
// content loads.
func (p *Page) ScrollToBottom(ctx context.Context) error {
	_, err := p.page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

// AcceptConsent clicks the first visible consent button. It reports whether
// one was clicked; otherwise overlays are stripped, except those holding a
// challenge widget.
func (p *Page) AcceptConsent(ctx context.Context) bool {
	rp := p.page.Context(ctx)
	for _, sel := range consentSelectors {
		has, el, err := rp.Has(sel)
		if err != nil || !has {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			_ = rp.WaitDOMStable(300*time.Millisecond, 0.1)
			return true
		}
	}
	removeOverlays(p.page.Context(ctx), p.challenge)
	return false
}

// removeOverlays injects JS to remove fixed/sticky positioned elements with
// high z-index, which are typically cookie consent banners and popup
// overlays. Elements matching or containing a keep selector stay.
func removeOverlays(p *rod.Page, keep []string) {
	const js = `(keep) => {
		const kept = (el) => keep.some((s) => {
			try { return el.matches(s) || el.querySelector(s) !== null; } catch (e) { return false; }
		});
		for (const el of document.querySelectorAll('*')) {
			const style = window.getComputedStyle(el);
			if (style.position === 'fixed' || style.position === 'sticky') {
				const z = parseInt(style.zIndex, 10);
				if (z >= 900 && !kept(el)) el.remove();
			}
		}
		const selectors = [
			'[class*="cookie"]', '[class*="consent"]', '[id*="cookie"]',
			'[id*="consent"]', '[class*="gdpr"]', '[id*="gdpr"]',
		];
		for (const sel of selectors) {
			document.querySelectorAll(sel).forEach(el => {
				const pos = window.getComputedStyle(el).position;
				if ((pos === 'fixed' || pos === 'sticky' || pos === 'absolute') && !kept(el)) el.remove();
			});
		}
		document.documentElement.style.overflow = '';
		if (document.body) document.body.style.overflow = '';
	}`
	if keep == nil {
		keep = builtinChallenge
	}
	_, _ = p.Eval(js, keep)
}
