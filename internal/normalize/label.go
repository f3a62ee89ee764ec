// Package normalize turns raw table cells into clean labels and numbers.
package normalize

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	markdown = goldmark.New()

	// Block syntax that would swallow a leading sign or digit ("- 5", "1. Foo", "# 3")
	blockPrefix   = regexp.MustCompile(`^([#>+=\-]|\*(\s|$))`)
	orderedPrefix = regexp.MustCompile(`^(\d{1,9})([.)])(\s|$)`)
	htmlTag       = regexp.MustCompile(`<[^>]*>`)
)

// Label returns the human display text of a cell: link text instead of link
// syntax, emphasis content without markers, entities resolved.
// Image alt text is used only when the cell has no other text.
func Label(raw string) string {
	src := []byte(escapeBlockPrefix(strings.TrimSpace(raw)))
	if len(src) == 0 {
		return ""
	}

	doc := markdown.Parser().Parse(text.NewReader(src))

	var body, alt bytes.Buffer
	imageDepth := 0

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if _, ok := n.(*ast.Image); ok {
			if entering {
				imageDepth++
			} else {
				imageDepth--
			}
			return ast.WalkContinue, nil
		}
		if !entering {
			return ast.WalkContinue, nil
		}

		out := &body
		if imageDepth > 0 {
			out = &alt
		}

		switch node := n.(type) {
		case *ast.Text:
			out.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				out.WriteByte(' ')
			}
		case *ast.String:
			out.Write(node.Value)
		case *ast.AutoLink:
			out.Write(node.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			// A cell that is only markup such as <img> or <span>; keep the inner text
			var raw bytes.Buffer
			for i := 0; i < node.Lines().Len(); i++ {
				seg := node.Lines().At(i)
				raw.Write(seg.Value(src))
			}
			out.WriteString(htmlTag.ReplaceAllString(raw.String(), " "))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	label := clean(body.Bytes())
	if label == "" {
		label = clean(alt.Bytes())
	}
	return label
}

func clean(b []byte) string {
	b = util.UnescapePunctuations(b)
	b = util.ResolveNumericReferences(b)
	b = util.ResolveEntityNames(b)
	return strings.Join(strings.Fields(string(b)), " ")
}

func escapeBlockPrefix(s string) string {
	if blockPrefix.MatchString(s) {
		return `\` + s
	}
	if m := orderedPrefix.FindStringSubmatchIndex(s); m != nil {
		// "1. Foo" -> "1\. Foo"
		return s[:m[4]] + `\` + s[m[4]:]
	}
	return s
}

// Reference returns the first link destination in a cell, falling back to its label.
// Used for citation cells where the URL matters more than the anchor text.
func Reference(raw string) string {
	src := []byte(strings.TrimSpace(raw))
	if len(src) == 0 {
		return ""
	}

	var dest string
	doc := markdown.Parser().Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			dest = string(node.Destination)
			return ast.WalkStop, nil
		case *ast.AutoLink:
			dest = string(node.URL(src))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	if dest != "" {
		return dest
	}
	return Label(raw)
}
