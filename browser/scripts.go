package browser

import (
	"encoding/json"
	"fmt"
)

// titleSelectors are tried in order; YouTube has shipped each of these layouts.
var titleSelectors = []string{
	"h1.ytd-watch-metadata yt-formatted-string",
	"h1.style-scope.ytd-watch-metadata",
	"h1.ytd-video-primary-info-renderer",
	".ytd-watch-metadata h1",
	"h1.ytd-watch-metadata",
	"ytd-watch-metadata h1",
}

// popupSelectors match consent banners, sign-in nags, premium offers and ad
// overlays, in English and Spanish.
var popupSelectors = []string{
	// cookie consent
	"button[aria-label*='Aceptar']",
	"button[aria-label*='Accept']",
	"ytd-consent-bump-v2-lightbox button",
	// close buttons
	"button[aria-label*='Cerrar']",
	"button[aria-label*='Close']",
	"button[aria-label*='Dismiss']",
	"button[aria-label*='Descartar']",
	"button.close-button",
	"button.dismiss-button",
	// sign-in prompts
	"ytd-popup-container button",
	"ytd-modal-with-title-and-button-renderer button",
	"#dismiss-button",
	"button[aria-label*='No, gracias']",
	"button[aria-label*='No thanks']",
	"button[aria-label*='Ahora no']",
	"button[aria-label*='Not now']",
	// premium offers
	"ytd-mealbar-promo-renderer button",
	// ads
	"button.ytp-ad-skip-button",
	".ytp-ad-skip-button",
	"button.ytp-ad-skip-button-modern",
	"button[aria-label*='Omitir']",
	"button[aria-label*='Skip']",
	".ytp-ad-overlay-close-container",
	".ytp-ad-overlay-close-button",
	// banners
	"ytd-banner-promo-renderer button",
}

var skipAdSelectors = []string{
	"button.ytp-ad-skip-button",
	".ytp-ad-skip-button",
	"button.ytp-ad-skip-button-modern",
	"button[aria-label*='Omitir']",
	"button[aria-label*='Skip']",
	".ytp-ad-overlay-close-button",
}

const (
	readyStateJS = `document.readyState === 'complete'`

	fullscreenJS = `!!(document.fullscreenElement || document.webkitFullscreenElement)`

	exitFullscreenJS = `(() => {
	if (!(document.fullscreenElement || document.webkitFullscreenElement)) return false;
	if (document.exitFullscreen) document.exitFullscreen();
	else if (document.webkitExitFullscreen) document.webkitExitFullscreen();
	return true;
})()`

	playJS = `(() => {
	window.scrollTo(0, 0);
	const video = document.querySelector('video');
	if (video) video.play().catch(() => {});
	const btn = document.querySelector('.ytp-play-button');
	if (btn) {
		const label = (btn.getAttribute('aria-label') || btn.getAttribute('data-title-no-tooltip') || '').toLowerCase();
		if (label.includes('play') || label.includes('reproducir')) btn.click();
	}
	return !!video;
})()`

	adActiveJS = `!!document.querySelector('.ytp-ad-module .ytp-ad-player-overlay, .ytp-ad-module .ytp-ad-text, .ad-showing')`

	// durationJS reports the player's duration label and the media element's
	// duration in seconds. Either may be empty.
	durationJS = `(() => {
	const out = {text: '', seconds: 0};
	const el = document.querySelector('.ytp-time-duration');
	if (el && el.offsetParent !== null) out.text = (el.textContent || '').trim();
	const video = document.querySelector('video');
	if (video && isFinite(video.duration) && video.duration > 0) out.seconds = video.duration;
	return out;
})()`
)

// titleJS returns the first non-empty title among titleSelectors, or "".
func titleJS() string {
	return fmt.Sprintf(`(() => {
	for (const sel of %s) {
		const el = document.querySelector(sel);
		const text = el && (el.textContent || '').trim();
		if (text) return text;
	}
	return '';
})()`, jsArray(titleSelectors))
}

// clickVisibleJS clicks the first visible enabled element of each selector
// and returns how many elements were clicked.
func clickVisibleJS(selectors []string, firstOnly bool) string {
	return fmt.Sprintf(`(() => {
	const visible = (el) => {
		if (el.disabled) return false;
		const r = el.getBoundingClientRect();
		const s = getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
	};
	let clicked = 0;
	for (const sel of %s) {
		let nodes;
		try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of nodes) {
			if (!visible(el)) continue;
			el.scrollIntoView({block: 'center'});
			el.click();
			clicked++;
			break;
		}
		if (%t && clicked > 0) break;
	}
	return clicked;
})()`, jsArray(selectors), firstOnly)
}

func jsArray(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}
