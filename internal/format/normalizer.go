// Package format converts model-produced markdown answers into the HTML
// fragment embedded in API responses. The conversion is idempotent: output
// that is already normalized passes through unchanged, so responses can be
// normalized at every boundary without double-wrapping.
package format

import (
	"fmt"
	"regexp"
	"strings"
)

// ContainerOpen opens the wrapper element every normalized answer lives in.
const ContainerOpen = `<div class="assistant-response">`

// ContainerClose closes the wrapper element.
const ContainerClose = `</div>`

var (
	fencedBlockRe = regexp.MustCompile("(?s)```([a-zA-Z0-9+_.-]*)[ \t]*\n?(.*?)```")
	// A fence the model never closed runs to end of input.
	danglingFenceRe = regexp.MustCompile("(?s)```([a-zA-Z0-9+_.-]*)[ \t]*\n?(.*)$")
	inlineCodeRe    = regexp.MustCompile("`([^`\n]+)`")
	boldRe        = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	italicRe      = regexp.MustCompile(`\*([^*\n]+)\*`)
	preSegmentRe  = regexp.MustCompile(`(?s)<pre>.*?</pre>`)
)

// placeholder tokens use NUL bytes so no markdown rewrite can touch them.
func codePlaceholder(i int) string   { return fmt.Sprintf("\x00B%d\x00", i) }
func inlinePlaceholder(i int) string { return fmt.Sprintf("\x00I%d\x00", i) }

// IsNormalized reports whether text is already a normalized HTML fragment:
// wrapped in the answer container with no markdown markers left outside of
// <pre> blocks.
func IsNormalized(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, ContainerOpen) || !strings.HasSuffix(trimmed, ContainerClose) {
		return false
	}

	// The container must hold structured markup, not bare text.
	inner := strings.TrimSuffix(strings.TrimPrefix(trimmed, ContainerOpen), ContainerClose)
	if !strings.Contains(inner, "<") {
		return false
	}

	// Code blocks may legitimately contain markdown-looking text.
	stripped := preSegmentRe.ReplaceAllString(trimmed, "")

	if strings.Contains(stripped, "```") {
		return false
	}
	for _, line := range strings.Split(stripped, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ") {
			return false
		}
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			return false
		}
	}
	return true
}

// Normalize converts a markdown answer into the wrapped HTML fragment.
// Already-normalized input is returned unchanged.
func Normalize(text string) string {
	if IsNormalized(text) {
		return text
	}

	body := strings.TrimSpace(text)

	// If the model echoed the container around markdown, unwrap it first so
	// the rewrite does not nest containers.
	if strings.HasPrefix(body, ContainerOpen) && strings.HasSuffix(body, ContainerClose) {
		body = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(body, ContainerOpen), ContainerClose))
	}

	body = renderMarkdown(body)
	if body == "" {
		body = "<p></p>"
	}
	return ContainerOpen + "\n" + body + "\n" + ContainerClose
}

// renderMarkdown rewrites markdown constructs in a fixed order: fenced code
// blocks, inline code, headings, bullet lists, paragraphs, then emphasis.
// Code content is replaced with placeholders up front so later rewrites
// cannot touch it.
func renderMarkdown(text string) string {
	var codeBlocks []string
	stash := func(lang, code string) string {
		code = strings.TrimRight(code, "\n")
		var rendered string
		if lang != "" {
			rendered = fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`, lang, escapeHTML(code))
		} else {
			rendered = fmt.Sprintf(`<pre><code>%s</code></pre>`, escapeHTML(code))
		}
		codeBlocks = append(codeBlocks, rendered)
		return codePlaceholder(len(codeBlocks) - 1)
	}

	text = fencedBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		groups := fencedBlockRe.FindStringSubmatch(match)
		return stash(groups[1], groups[2])
	})
	// Paired fences are consumed above, so at most one unclosed fence can
	// remain. It becomes a code block spanning the rest of the input.
	text = danglingFenceRe.ReplaceAllStringFunc(text, func(match string) string {
		groups := danglingFenceRe.FindStringSubmatch(match)
		return stash(groups[1], groups[2])
	})

	var inlineSpans []string
	text = inlineCodeRe.ReplaceAllStringFunc(text, func(match string) string {
		groups := inlineCodeRe.FindStringSubmatch(match)
		inlineSpans = append(inlineSpans, "<code>"+escapeHTML(groups[1])+"</code>")
		return inlinePlaceholder(len(inlineSpans) - 1)
	})

	body := renderBlocks(text)

	body = boldRe.ReplaceAllString(body, "<strong>$1</strong>")
	body = italicRe.ReplaceAllString(body, "<em>$1</em>")

	for i, span := range inlineSpans {
		body = strings.Replace(body, inlinePlaceholder(i), span, 1)
	}
	for i, block := range codeBlocks {
		body = strings.Replace(body, codePlaceholder(i), block, 1)
	}
	return body
}

// renderBlocks converts headings, bullet lists, and paragraphs line by line.
func renderBlocks(text string) string {
	var out []string
	var listItems []string
	var paragraph []string

	flushList := func() {
		if len(listItems) == 0 {
			return
		}
		var b strings.Builder
		b.WriteString("<ul>")
		for _, item := range listItems {
			b.WriteString("<li>" + item + "</li>")
		}
		b.WriteString("</ul>")
		out = append(out, b.String())
		listItems = nil
	}
	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		out = append(out, "<p>"+strings.Join(paragraph, " ")+"</p>")
		paragraph = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flushList()
			flushParagraph()

		case strings.HasPrefix(trimmed, "# "):
			flushList()
			flushParagraph()
			out = append(out, "<h3>"+strings.TrimSpace(trimmed[2:])+"</h3>")

		case strings.HasPrefix(trimmed, "## "):
			flushList()
			flushParagraph()
			out = append(out, "<h4>"+strings.TrimSpace(trimmed[3:])+"</h4>")

		case strings.HasPrefix(trimmed, "### "):
			flushList()
			flushParagraph()
			out = append(out, "<h5>"+strings.TrimSpace(trimmed[4:])+"</h5>")

		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			flushParagraph()
			listItems = append(listItems, strings.TrimSpace(trimmed[2:]))

		case strings.HasPrefix(trimmed, "\x00B"):
			// standalone code block placeholder remains a top-level block
			flushList()
			flushParagraph()
			out = append(out, trimmed)

		default:
			flushList()
			paragraph = append(paragraph, trimmed)
		}
	}
	flushList()
	flushParagraph()

	return strings.Join(out, "\n")
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
