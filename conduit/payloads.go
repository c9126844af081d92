package conduit

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
)

//go:embed payloads/POST-article.json
var articleTemplate []byte

// ArticleDraft is the article part of create and update requests.
type ArticleDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Body        string   `json:"body"`
	TagList     []string `json:"tagList"`
}

type ArticleDraftEnvelope struct {
	Article ArticleDraft `json:"article"`
}

// NewArticlePayload returns a fresh copy of the embedded article template.
func NewArticlePayload() ArticleDraftEnvelope {
	var env ArticleDraftEnvelope
	if err := json.Unmarshal(articleTemplate, &env); err != nil {
		panic("conduit: embedded article template is invalid: " + err.Error())
	}
	return env
}

// Generator produces random payload content.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator returns a generator; seed 0 picks a random seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Title returns words random lorem words joined by spaces.
func (g *Generator) Title(words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = g.faker.LoremIpsumWord()
	}
	return strings.Join(parts, " ")
}

// Article fills the template with a random title, description and body.
func (g *Generator) Article() ArticleDraftEnvelope {
	env := NewArticlePayload()
	env.Article.Title = g.faker.LoremIpsumSentence(5)
	env.Article.Description = g.faker.LoremIpsumParagraph(1, 3, 8, " ")
	env.Article.Body = g.faker.LoremIpsumParagraph(8, 4, 10, "\n\n")
	return env
}

// Username returns n random lowercase letters.
func (g *Generator) Username(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.ToLower(g.faker.LetterN(uint(n)))
}
