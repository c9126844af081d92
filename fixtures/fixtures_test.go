package fixtures_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/conduit-qa/conduit-tests/conduit"
	"github.com/conduit-qa/conduit-tests/conduit/conduittest"
	"github.com/conduit-qa/conduit-tests/fixtures"
	"github.com/conduit-qa/conduit-tests/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	srv := conduittest.NewTestServer(t, conduittest.WithUser("fixture@example.com", "fixture", "password1"))
	token, err := conduit.CreateToken(context.Background(), srv.Client(), srv.APIURL(), "fixture@example.com", "password1", nil)
	require.NoError(t, err)

	fx := fixtures.New(t, fixtures.Options{
		BaseURL:           srv.APIURL(),
		Token:             token,
		SchemaDir:         t.TempDir(),
		RequestsPerSecond: 50,
	})

	resp, err := fx.API.Path("/articles").Body(conduit.NewArticlePayload()).Post(context.Background(), http.StatusCreated)
	require.NoError(t, err)
	var created conduit.ArticleEnvelope
	require.NoError(t, resp.Decode(&created))

	fx.Expect.ShouldHaveSlugFor("Test Article", created.Article.Slug)
	fx.Expect.ShouldMatchSchema("articles", "POST_article", resp.Body, verify.Regenerate())
	assert.Contains(t, fx.Logs.RecentLogs(), "===Response Details===")
	assert.FileExists(t, fx.Schemas.Path("articles", "POST_article"))
}

func TestNew_Isolated(t *testing.T) {
	a := fixtures.New(t, fixtures.Options{BaseURL: "http://a.invalid"})
	b := fixtures.New(t, fixtures.Options{BaseURL: "http://b.invalid"})

	a.Logs.LogRequest("GET", "http://a.invalid/tags", nil, nil)
	assert.Len(t, a.Logs.Entries(), 1)
	assert.Empty(t, b.Logs.Entries())
	assert.NotSame(t, a.API, b.API)
}
