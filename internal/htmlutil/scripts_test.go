package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripScriptsRemovesExecutableScripts(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		stripped bool
		gone     []string
		kept     []string
	}{
		{
			name:     "untyped script",
			input:    `<html><head><script src="/app.js"></script></head><body><h1>Hi</h1></body></html>`,
			stripped: true,
			gone:     []string{"<script"},
			kept:     []string{"<h1>Hi</h1>"},
		},
		{
			name:     "module script",
			input:    `<html><body><script type="module">import x from "/x.js"</script><p>text</p></body></html>`,
			stripped: true,
			gone:     []string{"<script"},
			kept:     []string{"<p>text</p>"},
		},
		{
			name:     "inline javascript with mixed-case type",
			input:    `<html><body><script type="Text/JavaScript">go()</script></body></html>`,
			stripped: true,
			gone:     []string{"<script"},
		},
		{
			name:     "json-ld is preserved",
			input:    `<html><head><script type="application/ld+json">{"@type":"Thing"}</script></head><body></body></html>`,
			stripped: false,
			kept:     []string{`application/ld+json`, `"@type"`},
		},
		{
			name:     "modulepreload link removed",
			input:    `<html><head><link rel="modulepreload" href="/chunk.js"><link rel="stylesheet" href="/a.css"></head><body></body></html>`,
			stripped: true,
			gone:     []string{"modulepreload"},
			kept:     []string{"stylesheet"},
		},
		{
			name:     "preload as script removed, preload as font kept",
			input:    `<html><head><link rel="preload" as="script" href="/x.js"><link rel="preload" as="font" href="/f.woff2"></head><body></body></html>`,
			stripped: true,
			gone:     []string{`href="/x.js"`},
			kept:     []string{`href="/f.woff2"`},
		},
		{
			name:     "no scripts at all",
			input:    `<html><body><div id="root">content</div></body></html>`,
			stripped: false,
			kept:     []string{`<div id="root">content</div>`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stripped := StripScripts(tt.input)
			assert.Equal(t, tt.stripped, stripped)
			for _, s := range tt.gone {
				assert.NotContains(t, out, s)
			}
			for _, s := range tt.kept {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestStripScriptsNoChangeReturnsInputVerbatim(t *testing.T) {
	input := `<html><body><p>plain</p></body></html>`
	out, stripped := StripScripts(input)
	assert.False(t, stripped)
	assert.Equal(t, input, out)
}

func TestStripScriptsRemovesAllOfMany(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 20; i++ {
		b.WriteString(`<script>x()</script><span>s</span>`)
	}
	b.WriteString("</body></html>")

	out, stripped := StripScripts(b.String())
	assert.True(t, stripped)
	assert.NotContains(t, out, "<script")
	assert.Equal(t, 20, strings.Count(out, "<span>s</span>"))
}
