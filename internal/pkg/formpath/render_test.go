package formpath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mx-space/drafts/internal/pkg/formpath"
)

func TestRender(t *testing.T) {
	t.Run("single template with free text", func(t *testing.T) {
		form := formpath.Parse(fields(
			"wpDraftTitle", "Tutorial/Test",
			"Tuto Details[Type]", "Creation",
			"Tuto Details[Difficulty]", "Easy",
			"pf_free_text", "Body text",
		))
		assert.Equal(t, "{{Tuto Details\n|Type=Creation\n|Difficulty=Easy\n}}\nBody text", formpath.Render(form))
	})

	t.Run("multiple instances", func(t *testing.T) {
		form := formpath.Parse(fields(
			"Step[1a][Title]", "First",
			"Step[2b][Title]", "Second",
		))
		assert.Equal(t, "{{Step\n|Title=First\n}}\n{{Step\n|Title=Second\n}}", formpath.Render(form))
	})

	t.Run("control groups are skipped", func(t *testing.T) {
		form := formpath.Parse(fields("wpOptions[watch]", "1", "Info[a]", "b"))
		assert.Equal(t, "{{Info\n|a=b\n}}", formpath.Render(form))
	})

	t.Run("empty template", func(t *testing.T) {
		form := formpath.NewNode()
		form.Child("Empty")
		assert.Equal(t, "{{Empty\n}}", formpath.Render(form))
	})

	t.Run("nil form", func(t *testing.T) {
		assert.Equal(t, "", formpath.Render(nil))
	})
}
