package markdown_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mx-space/drafts/internal/pkg/markdown"
)

func TestRender(t *testing.T) {
	assert.Equal(t, "", markdown.Render("  \n"))
	assert.Contains(t, markdown.Render("# Title"), "<h1>Title</h1>")
	assert.Contains(t, markdown.Render("~~gone~~"), "<del>gone</del>")

	html := markdown.Render("hello <script>alert(1)</script>")
	assert.NotContains(t, html, "<script>")
}
