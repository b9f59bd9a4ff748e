package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "no tags here", "no tags here"},
		{"inline", "<p>Hello <b>world</b></p>", "Hello world"},
		{"paragraphs", "<p>One</p>\n<p>Two</p>", "One\n\nTwo"},
		{"list", "<ul><li>a</li><li>b</li></ul>", "- a\n- b"},
		{"pre keeps indentation", "<p>Try:</p><pre><code>if x:\n    y()\n</code></pre>", "Try:\n\nif x:\n    y()"},
		{"script dropped", "<p>ok</p><script>alert(1)</script>", "ok"},
		{"collapses whitespace", "<div>  many   spaces  </div>", "many spaces"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToText(tt.input))
		})
	}
}
