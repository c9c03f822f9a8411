package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for raw, want := range map[string]Query{
		"":                   {Page: 1, Size: DefaultSize},
		"page=3&size=5":      {Page: 3, Size: 5},
		"page=0&size=-1":     {Page: 1, Size: DefaultSize},
		"page=abc&size=1000": {Page: 1, Size: MaxSize},
	} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/?"+raw, nil)
		assert.Equal(t, want, FromContext(c), raw)
	}
}

func TestMeta(t *testing.T) {
	q := Normalize(2, 10)
	assert.Equal(t, 10, q.Offset())

	m := q.Meta(25)
	assert.Equal(t, 3, m.TotalPage)
	assert.True(t, m.HasNextPage)

	m = Normalize(3, 10).Meta(25)
	assert.False(t, m.HasNextPage)

	m = q.Meta(0)
	assert.Equal(t, 0, m.TotalPage)
	assert.False(t, m.HasNextPage)
}
