// Package htmlutil post-processes rendered markup before it is served to
// crawlers.
package htmlutil

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// executableScriptTypes are the MIME types browsers execute as JavaScript.
var executableScriptTypes = map[string]bool{
	"text/javascript":        true,
	"module":                 true,
	"application/javascript": true,
}

// StripScripts removes executable script elements and script-related link
// hints from rendered HTML. Crawlers receive the fully rendered DOM, so the
// scripts that produced it are dead weight and can double-execute client
// routers. Returns the input unchanged when parsing fails or nothing was
// removed.
func StripScripts(rendered string) (string, bool) {
	root, err := html.Parse(strings.NewReader(rendered))
	if err != nil {
		return rendered, false
	}

	var toRemove []*html.Node

	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if isExecutableScript(n) || isScriptRelatedLink(n) {
				toRemove = append(toRemove, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(root)

	if len(toRemove) == 0 {
		return rendered, false
	}

	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return rendered, false
	}
	return buf.String(), true
}

// isExecutableScript reports whether a node is a <script> element that would
// execute. JSON-LD and template scripts carry data, not code, and are kept.
func isExecutableScript(node *html.Node) bool {
	if node.Type != html.ElementNode || strings.ToLower(node.Data) != "script" {
		return false
	}

	scriptType := strings.ToLower(strings.TrimSpace(getAttr(node, "type")))
	if scriptType == "" {
		return true
	}
	return executableScriptTypes[scriptType]
}

// isScriptRelatedLink reports whether a <link> element only exists to load
// scripts: import, modulepreload, or preload with as="script".
func isScriptRelatedLink(node *html.Node) bool {
	if node.Type != html.ElementNode || strings.ToLower(node.Data) != "link" {
		return false
	}

	switch strings.ToLower(getAttr(node, "rel")) {
	case "import", "modulepreload":
		return true
	case "preload":
		return strings.ToLower(getAttr(node, "as")) == "script"
	}
	return false
}

func getAttr(node *html.Node, name string) string {
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, name) {
			return attr.Val
		}
	}
	return ""
}
