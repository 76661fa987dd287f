package browser

import (
	"encoding/json"
	"fmt"
)

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// removeScript deletes every element matching selector and returns how many
// were removed.
func removeScript(selector string) string {
	return fmt.Sprintf(`(() => {
  const nodes = document.querySelectorAll(%s);
  nodes.forEach(n => n.remove());
  return nodes.length;
})()`, jsString(selector))
}

const bodyWidthScript = `Math.max(
  document.body ? document.body.scrollWidth : 0,
  document.documentElement ? document.documentElement.scrollWidth : 0
)`

// metricsScript collects the values of identified form fields inside the
// container matched by selector. A missing container yields an empty object.
func metricsScript(selector string) string {
	return fmt.Sprintf(`(() => {
  const out = {};
  const root = document.querySelector(%s);
  if (!root) return out;
  root.querySelectorAll('input[id], select[id], textarea[id]').forEach(el => {
    out[el.id] = el.value == null ? '' : String(el.value);
  });
  return out;
})()`, jsString(selector))
}
