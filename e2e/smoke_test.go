//go:build e2e

package e2e

import (
	"context"
	"net/http"
	"testing"

	"github.com/conduit-qa/conduit-tests/apilog"
	"github.com/conduit-qa/conduit-tests/conduit"
	"github.com/conduit-qa/conduit-tests/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pageParams = []request.QueryParam{request.P("limit", 10), request.P("offset", 0)}

func listArticles(t *testing.T, api *request.Handler) conduit.ArticleList {
	t.Helper()
	resp, err := api.Path("/articles").Params(pageParams...).Get(context.Background(), http.StatusOK)
	require.NoError(t, err)
	var list conduit.ArticleList
	require.NoError(t, resp.Decode(&list))
	return list
}

func TestGetAllArticles(t *testing.T) {
	fx := newFixture(t)

	resp, err := fx.API.Path("/articles").Params(pageParams...).Get(context.Background(), http.StatusOK)
	require.NoError(t, err)
	fx.Expect.ShouldMatchSchema("articles", "GET_articles", resp.Body)

	var list conduit.ArticleList
	require.NoError(t, resp.Decode(&list))
	fx.Expect.ShouldBeLessThanOrEqual(len(list.Articles), 10)
	fx.Expect.ShouldEqual(list.ArticlesCount, len(list.Articles))
}

func TestGetTags(t *testing.T) {
	fx := newFixture(t)

	resp, err := fx.API.Path("/tags").Get(context.Background(), http.StatusOK)
	require.NoError(t, err)
	fx.Expect.ShouldMatchSchema("tags", "GET_tags", resp.Body)

	var tags conduit.TagList
	require.NoError(t, resp.Decode(&tags))
	fx.Expect.ShouldBeLessThanOrEqual(len(tags.Tags), 10)
}

func TestCreateAndDeleteArticle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	payload := conduit.NewArticlePayload()
	payload.Article.Title = conduit.NewGenerator(0).Title(4)

	resp, err := fx.API.Path("/articles").Body(payload).Post(ctx, http.StatusCreated)
	require.NoError(t, err)
	fx.Expect.ShouldMatchSchema("articles", "POST_article", resp.Body)
	var created conduit.ArticleEnvelope
	require.NoError(t, resp.Decode(&created))
	fx.Expect.ShouldEqual(created.Article.Title, payload.Article.Title)
	fx.Expect.ShouldHaveSlugFor(payload.Article.Title, created.Article.Slug)
	slug := created.Article.Slug

	fx.Expect.ShouldEqual(listArticles(t, fx.API).Contains(slug), true)

	require.NoError(t, fx.API.Path("/articles/"+slug).Delete(ctx, http.StatusNoContent))

	fx.Expect.ShouldEqual(listArticles(t, fx.API).Contains(slug), false)
}

func TestCreateUpdateAndDeleteArticle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	gen := conduit.NewGenerator(0)

	payload := gen.Article()
	resp, err := fx.API.Path("/articles").Body(payload).Post(ctx, http.StatusCreated)
	require.NoError(t, err)
	var created conduit.ArticleEnvelope
	require.NoError(t, resp.Decode(&created))
	fx.Expect.ShouldEqual(created.Article.Title, payload.Article.Title)

	payload.Article.Title = gen.Title(5)
	resp, err = fx.API.Path("/articles/" + created.Article.Slug).Body(payload).Put(ctx, http.StatusOK)
	require.NoError(t, err)
	var updated conduit.ArticleEnvelope
	require.NoError(t, resp.Decode(&updated))
	fx.Expect.ShouldEqual(updated.Article.Title, payload.Article.Title)
	newSlug := updated.Article.Slug

	found, ok := listArticles(t, fx.API).Find(newSlug)
	fx.Expect.ShouldEqual(ok, true)
	fx.Expect.ShouldEqual(found.Title, payload.Article.Title)

	require.NoError(t, fx.API.Path("/articles/"+newSlug).Delete(ctx, http.StatusNoContent))

	fx.Expect.ShouldEqual(listArticles(t, fx.API).Contains(newSlug), false)
}

func TestLoggerRecentLogs(t *testing.T) {
	logger := apilog.NewRecorder(nil)
	logger.LogRequest("GET", "https://test.com/api", map[string]string{"Authorization": "Token"}, map[string]any{"foo": "bar"})
	logger.LogResponse(200, map[string]any{"foo": "bar"})

	logs := logger.RecentLogs()
	t.Log(logs)
	assert.Contains(t, logs, "===Request Details===")
	assert.Contains(t, logs, "===Response Details===")
}
