package conduit_test

import (
	"testing"

	"github.com/conduit-qa/conduit-tests/conduit"
	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Hello, World", "hello-world"},
		{"  Many   spaces here ", "many-spaces-here"},
		{"Already-hyphenated title!", "already-hyphenated-title"},
		{"Ünïcode wörds 2024", "ünïcode-wörds-2024"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, conduit.Slugify(tt.title))
		})
	}
}

func TestSlugBase(t *testing.T) {
	assert.Equal(t, "Hello-World", conduit.SlugBase("Hello-World-1"))
	assert.Equal(t, "hello-world", conduit.SlugBase("hello-world-123456"))
	assert.Equal(t, "hello-world", conduit.SlugBase("hello-world"))
	assert.Equal(t, "v-2-release", conduit.SlugBase("v-2-release-7"))
}

func TestSlugMatchesTitle(t *testing.T) {
	assert.True(t, conduit.SlugMatchesTitle("Hello, World", "Hello-World-1"))
	assert.True(t, conduit.SlugMatchesTitle("Hello, World", "hello-world-42"))
	assert.False(t, conduit.SlugMatchesTitle("Hello, World", "Goodbye-World-1"))
}
