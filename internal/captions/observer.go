package captions

import (
	"encoding/json"
	"fmt"
)

// BindingName is the page-global function the observer reports through.
const BindingName = "__clerkCaption"

// ObserverConfig is serialised into the page script.
type ObserverConfig struct {
	Binding  string   `json:"binding"`
	Regions  []string `json:"regions"`
	Fragment string   `json:"fragment"`
	Speaker  []string `json:"speaker"`
}

// Observer results returned by the install expression.
const (
	observerInstalled = "installed"
	observerPresent   = "present"
	observerMissing   = "missing"
)

// observerTemplate attaches a MutationObserver to the first caption region
// found and posts a JSON snapshot of every touched fragment. It never
// decides what is new; that happens in the Reconciler.
const observerTemplate = `(() => {
  const cfg = %s;
  if (window.__clerkCaptionObserver) return %q;
  let region = null;
  for (const sel of cfg.regions) {
    region = document.querySelector(sel);
    if (region) break;
  }
  if (!region) return %q;

  const ids = new WeakMap();
  let next = 0;
  const idOf = (el) => {
    let id = ids.get(el);
    if (!id) { id = ++next; ids.set(el, id); }
    return id;
  };
  const speakerSel = cfg.speaker.join(",");

  // Only an added node may contain its fragment; a mutated target must sit
  // inside one.
  const fragmentOf = (node, added) => {
    let el = node instanceof HTMLElement ? node : node.parentElement;
    if (!el) return null;
    if (!cfg.fragment) return el;
    if (el.matches(cfg.fragment)) return el;
    if (added) return el.querySelector(cfg.fragment) || el.closest(cfg.fragment);
    return el.closest(cfg.fragment);
  };

  const speakerOf = (el) => {
    if (!speakerSel) return "";
    let scope = el;
    for (let depth = 0; scope && depth < 4; depth++, scope = scope.parentElement) {
      const label = scope.querySelector(speakerSel);
      if (label && label !== el && label.textContent.trim()) return label.textContent.trim();
    }
    return "";
  };

  const textOf = (el) => {
    const clone = el.cloneNode(true);
    if (speakerSel) clone.querySelectorAll(speakerSel).forEach((n) => n.remove());
    return (clone.textContent || "").trim();
  };

  const post = (el, added) => {
    try {
      window[cfg.binding](JSON.stringify({ id: idOf(el), added, speaker: speakerOf(el), text: textOf(el) }));
    } catch (e) {
      console.log("[clerk] caption post failed", String(e));
    }
  };

  const observer = new MutationObserver((mutations) => {
    for (const m of mutations) {
      if (m.type === "characterData") {
        const el = fragmentOf(m.target, false);
        if (el) post(el, false);
        continue;
      }
      // Removal-only mutations carry no new text.
      for (const node of m.addedNodes) {
        const isElement = node instanceof HTMLElement;
        const el = fragmentOf(node, isElement);
        if (el) post(el, isElement);
      }
    }
  });
  observer.observe(region, { childList: true, subtree: true, characterData: true });
  window.__clerkCaptionObserver = observer;
  console.log("[clerk] caption observer attached");
  return %q;
})()`

// ObserverScript renders the install expression for cfg. It evaluates to
// "installed", "present" when already attached, or "missing" when no
// caption region exists yet.
func ObserverScript(cfg ObserverConfig) string {
	if cfg.Binding == "" {
		cfg.Binding = BindingName
	}
	if cfg.Speaker == nil {
		cfg.Speaker = []string{}
	}
	raw, _ := json.Marshal(cfg)
	return fmt.Sprintf(observerTemplate, raw, observerPresent, observerMissing, observerInstalled)
}
