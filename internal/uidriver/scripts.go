package uidriver

import (
	"encoding/json"
	"fmt"
)

// findByText prefers interactive elements whose visible text contains the
// wanted string and falls back to the innermost element that does.
const findByText = `(want) => {
  const interactive = document.querySelectorAll('button,a,[role="button"],[role="menuitem"],[role="option"],label');
  for (const el of interactive) {
    if ((el.innerText || el.textContent || '').includes(want)) return el;
  }
  let found = null;
  for (const el of document.querySelectorAll('body *')) {
    if ((el.textContent || '').includes(want)) found = el;
  }
  return found;
}`

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// findExpr is a JavaScript expression evaluating to the located element or
// null.
func findExpr(loc Locator) string {
	v := jsString(loc.Value)
	switch loc.Strategy {
	case StrategyCSS:
		return fmt.Sprintf("document.querySelector(%s)", v)
	case StrategyText:
		return fmt.Sprintf("(%s)(%s)", findByText, v)
	default:
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", v)
	}
}

// withElement wraps body so that it runs with el bound to the located
// element. A missing element yields the string "missing".
func withElement(loc Locator, body string) string {
	return fmt.Sprintf(`(() => {
  const el = %s;
  if (!el) return "missing";
  %s
})()`, findExpr(loc), body)
}

const stateBody = `const r = el.getBoundingClientRect();
  const st = window.getComputedStyle(el);
  const visible = r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
  const enabled = !el.disabled && el.getAttribute('aria-disabled') !== 'true' && st.pointerEvents !== 'none';
  return {found: true, visible: visible, enabled: enabled};`

const clickBody = `el.scrollIntoView({block: 'center', inline: 'center'});
  el.click();
  return "ok";`

const focusBody = `el.scrollIntoView({block: 'center'});
  el.focus();
  if (el.tagName === 'TEXTAREA' || el.tagName === 'INPUT') {
    el.select();
    return "field";
  }
  const range = document.createRange();
  range.selectNodeContents(el);
  const sel = window.getSelection();
  sel.removeAllRanges();
  sel.addRange(range);
  return "editable";`

// setFieldValue goes through the native value setter so that framework
// bound inputs observe the change.
func setFieldValueBody(text string) string {
	return fmt.Sprintf(`const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
  Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, %s);
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return "ok";`, jsString(text))
}

const optionsBody = `if (el.tagName !== 'SELECT') return {native: false, options: []};
  return {native: true, options: Array.from(el.options).map(o => (o.text || '').trim())};`

func selectIndexBody(index int) string {
	return fmt.Sprintf(`el.selectedIndex = %d;
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return "ok";`, index)
}

const sliderBody = `const thumb = el.querySelector('[role="slider"]') || el;
  const num = (v, d) => { const n = parseFloat(v); return isNaN(n) ? d : n; };
  const min = num(thumb.getAttribute('aria-valuemin') ?? el.getAttribute('min'), 0);
  const max = num(thumb.getAttribute('aria-valuemax') ?? el.getAttribute('max'), 100);
  el.scrollIntoView({block: 'center'});
  const tr = el.getBoundingClientRect();
  const th = thumb.getBoundingClientRect();
  return {
    found: true,
    native: el.tagName === 'INPUT',
    min: min, max: max,
    trackLeft: tr.left, trackWidth: tr.width,
    thumbX: th.left + th.width / 2, thumbY: th.top + th.height / 2
  };`
