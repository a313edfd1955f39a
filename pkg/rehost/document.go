package rehost

import (
	"context"
	"strings"

	"golang.org/x/net/html"
)

// nodeElement adapts an html.Node to the Element interface.
type nodeElement struct {
	node *html.Node
}

func (element nodeElement) Attr(name string) (string, bool) {
	for _, attribute := range element.node.Attr {
		if attribute.Key == name {
			return attribute.Val, true
		}
	}
	return "", false
}

func (element nodeElement) SetAttr(name string, value string) {
	for i, attribute := range element.node.Attr {
		if attribute.Key == name {
			element.node.Attr[i].Val = value
			return
		}
	}
	element.node.Attr = append(element.node.Attr, html.Attribute{Key: name, Val: value})
}

// RewriteDocument walks a parsed HTML document and rewrites every candidate
// external reference: stylesheet link hrefs and script srcs. Local references
// are left untouched. Returns the number of attributes rewritten.
//
// The document is mutated in place; render it after Materialize succeeds.
func (engine *Engine) RewriteDocument(ctx context.Context, document *html.Node) (int, error) {
	rewritten := 0

	var walk func(node *html.Node) error
	walk = func(node *html.Node) error {
		if node.Type == html.ElementNode {
			switch node.Data {
			case "link":
				element := nodeElement{node: node}
				if rel, _ := element.Attr("rel"); strings.EqualFold(strings.TrimSpace(rel), "stylesheet") {
					localPath, err := engine.RewriteAttr(ctx, element, "href", KindStylesheet)
					if err != nil {
						return err
					}
					if localPath != "" {
						rewritten++
					}
				}

			case "script":
				localPath, err := engine.RewriteAttr(ctx, nodeElement{node: node}, "src", KindScript)
				if err != nil {
					return err
				}
				if localPath != "" {
					rewritten++
				}
			}
		}

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(document); err != nil {
		return rewritten, err
	}
	return rewritten, nil
}
