package telegram

import (
	"bytes"
	"html"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// MarkdownToTelegramHTML 把模型回复的 Markdown 转换为 Telegram 支持的 HTML 子集
// (b, i, s, code, pre, a). 不支持的块级元素降级为纯文本
func MarkdownToTelegramHTML(src string) string {
	if src == "" {
		return ""
	}
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	w := &htmlWriter{source: source}
	_ = ast.Walk(doc, w.visit)
	return strings.TrimSpace(w.buf.String())
}

// PlainText strips markup and returns what a reader would see.
func PlainText(src string) string {
	if src == "" {
		return ""
	}
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	w := &htmlWriter{source: source, plain: true}
	_ = ast.Walk(doc, w.visit)
	return strings.TrimSpace(w.buf.String())
}

type htmlWriter struct {
	source []byte
	plain  bool
	buf    bytes.Buffer
	lists  []int // 有序列表的当前序号, 0 表示无序
}

func (w *htmlWriter) tag(s string) {
	if !w.plain {
		w.buf.WriteString(s)
	}
}

func (w *htmlWriter) text(b []byte) {
	if w.plain {
		w.buf.Write(b)
		return
	}
	w.buf.WriteString(html.EscapeString(string(b)))
}

func (w *htmlWriter) lines(n ast.Node) {
	l := n.Lines()
	for i := 0; i < l.Len(); i++ {
		seg := l.At(i)
		w.text(seg.Value(w.source))
	}
}

func (w *htmlWriter) visit(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Document:
	case *ast.Paragraph:
		if !entering {
			w.buf.WriteString("\n\n")
		}
	case *ast.TextBlock:
		if !entering {
			w.buf.WriteString("\n")
		}
	case *ast.Heading:
		if entering {
			w.tag("<b>")
		} else {
			w.tag("</b>")
			w.buf.WriteString("\n\n")
		}
	case *ast.ThematicBreak:
		if entering {
			w.buf.WriteString("---\n\n")
		}
	case *ast.Blockquote:
		if entering {
			w.buf.WriteString("> ")
		}
	case *ast.List:
		if entering {
			start := 0
			if n.IsOrdered() {
				start = n.Start
				if start == 0 {
					start = 1
				}
			}
			w.lists = append(w.lists, start)
		} else {
			w.lists = w.lists[:len(w.lists)-1]
			w.buf.WriteString("\n")
		}
	case *ast.ListItem:
		if entering {
			depth := len(w.lists)
			if depth > 1 {
				w.buf.WriteString(strings.Repeat("  ", depth-1))
			}
			if idx := w.lists[depth-1]; idx > 0 {
				w.buf.WriteString(strconv.Itoa(idx) + ". ")
				w.lists[depth-1]++
			} else {
				w.buf.WriteString("• ")
			}
		}
	case *ast.FencedCodeBlock:
		if entering {
			if lang := string(n.Language(w.source)); lang != "" {
				w.tag(`<pre><code class="language-` + html.EscapeString(lang) + `">`)
			} else {
				w.tag("<pre><code>")
			}
			w.lines(n)
			w.tag("</code></pre>")
			w.buf.WriteString("\n\n")
		}
		return ast.WalkSkipChildren, nil
	case *ast.CodeBlock:
		if entering {
			w.tag("<pre><code>")
			w.lines(n)
			w.tag("</code></pre>")
			w.buf.WriteString("\n\n")
		}
		return ast.WalkSkipChildren, nil
	case *ast.CodeSpan:
		if entering {
			w.tag("<code>")
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					w.text(t.Segment.Value(w.source))
				}
			}
			w.tag("</code>")
		}
		return ast.WalkSkipChildren, nil
	case *ast.Emphasis:
		name := "i"
		if n.Level >= 2 {
			name = "b"
		}
		if entering {
			w.tag("<" + name + ">")
		} else {
			w.tag("</" + name + ">")
		}
	case *ast.Link:
		if entering {
			w.tag(`<a href="` + html.EscapeString(string(n.Destination)) + `">`)
		} else {
			w.tag("</a>")
		}
	case *ast.AutoLink:
		if entering {
			url := n.URL(w.source)
			w.tag(`<a href="` + html.EscapeString(string(url)) + `">`)
			w.text(n.Label(w.source))
			w.tag("</a>")
		}
		return ast.WalkSkipChildren, nil
	case *ast.Image:
		// 图片只保留替代文本
	case *ast.Text:
		if entering {
			w.text(n.Segment.Value(w.source))
			if n.HardLineBreak() || n.SoftLineBreak() {
				w.buf.WriteString("\n")
			}
		}
	case *ast.String:
		if entering {
			w.text(n.Value)
		}
	case *ast.RawHTML, *ast.HTMLBlock:
		// 模型输出的原始 HTML 按文本转义
		if entering {
			if rh, ok := n.(*ast.RawHTML); ok {
				for i := 0; i < rh.Segments.Len(); i++ {
					seg := rh.Segments.At(i)
					w.text(seg.Value(w.source))
				}
			} else {
				w.lines(n)
			}
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}
