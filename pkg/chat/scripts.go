package chat

import (
	"encoding/json"
	"fmt"

	"orcabridge/pkg/config"
)

// The scripts below are the page-side half of the driver. Their return
// shapes are a data contract: the driver decodes them field by field, so
// any change here must be mirrored in the structs in driver.go.

// jsString renders s as a JavaScript string literal. User text and
// selectors cross into the page through this one function; manual
// character replacement is how injection bugs happen.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// messagesScript snapshots all user and assistant messages in document
// order, as rendered text.
func messagesScript(cfg config.ChatConfig) string {
	return fmt.Sprintf(`
(function() {
    var result = { user: [], assistant: [] };
    document.querySelectorAll(%s).forEach(function(el) {
        var bubble = el.querySelector(%s);
        result.user.push(bubble ? bubble.innerText : el.innerText);
    });
    document.querySelectorAll(%s).forEach(function(el) {
        var md = el.querySelector(%s);
        result.assistant.push(md ? md.innerText : el.innerText);
    });
    return result;
})()`,
		jsString(cfg.UserSelector), jsString(cfg.UserTextSelector),
		jsString(cfg.AssistantSelector), jsString(cfg.MarkdownSelector))
}

// countScript returns the number of assistant messages on the page.
func countScript(cfg config.ChatConfig) string {
	return fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(cfg.AssistantSelector))
}

// submitScript places text into the prompt field and fires an input
// event so the page's own reactive logic registers the change.
func submitScript(cfg config.ChatConfig, text string) string {
	return fmt.Sprintf(`
(function() {
    var prompt = document.querySelector(%s);
    if (!prompt) return { error: "prompt field not found" };
    var p = document.createElement("p");
    p.textContent = %s;
    prompt.replaceChildren(p);
    prompt.dispatchEvent(new Event("input", { bubbles: true }));
    return { ok: true };
})()`, jsString(cfg.PromptSelector), jsString(text))
}

// sendScript activates the send control.
func sendScript(cfg config.ChatConfig) string {
	return fmt.Sprintf(`
(function() {
    var btn = document.querySelector(%s);
    if (!btn) return { error: "send button not found" };
    btn.click();
    return { ok: true };
})()`, jsString(cfg.SendSelector))
}

// observeScript captures the newest assistant message: its position in
// the message list and its body as raw HTML. Markdown conversion and
// image extraction both happen host-side on that HTML.
func observeScript(cfg config.ChatConfig) string {
	return fmt.Sprintf(`
(function() {
    var msgs = document.querySelectorAll(%s);
    if (msgs.length === 0) return { count: 0, html: "" };
    var last = msgs[msgs.length - 1];
    var md = last.querySelector(%s);
    return { count: msgs.length, html: (md || last).innerHTML };
})()`, jsString(cfg.AssistantSelector), jsString(cfg.MarkdownSelector))
}

// pageScript returns the full rendered document.
const pageScript = `document.documentElement.outerHTML`
