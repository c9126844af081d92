//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/conduit-qa/conduit-tests/conduit"
	"github.com/stretchr/testify/require"
)

func TestBasicGetTags(t *testing.T) {
	fx := newFixture(t)

	resp, err := fx.API.BaseURL(apiURL).Path("/tags").ClearAuth().Get(context.Background(), http.StatusOK)
	require.NoError(t, err)
	var tags conduit.TagList
	require.NoError(t, resp.Decode(&tags))
	require.NotEmpty(t, tags.Tags)

	fx.Expect.ShouldEqual(tags.Tags[0], "Test")
	fx.Expect.ShouldBeLessThanOrEqual(len(tags.Tags), 10)
	fx.Logger.Sugar().Infof("tags: %v", tags.Tags)
}

func TestBasicGetAllArticles(t *testing.T) {
	fx := newFixture(t)

	resp, err := fx.API.Path("/articles").Params(pageParams...).ClearAuth().Get(context.Background(), http.StatusOK)
	require.NoError(t, err)
	var list conduit.ArticleList
	require.NoError(t, resp.Decode(&list))
	require.NotEmpty(t, list.Articles)

	fx.Expect.ShouldBeLessThanOrEqual(len(list.Articles), 10)
	fx.Expect.ShouldEqual(list.Articles[0].Author.Username, "Artem Bondar")
}

func TestBasicCreateArticleAndGetBySlug(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	jwt, err := conduit.CreateToken(ctx, http.DefaultClient, apiURL, account.Email, account.Password, fx.Logger)
	require.NoError(t, err)
	fx.Logger.Info("Obtained token")

	title := fmt.Sprintf("Yehor Test %d", time.Now().UnixMilli())
	payload := conduit.NewArticlePayload()
	payload.Article.Title = title
	payload.Article.Body = "description of the test article"

	resp, err := fx.API.Path("/articles").
		Headers(map[string]string{"Authorization": jwt}).
		Body(payload).
		ClearAuth().
		Post(ctx, http.StatusCreated)
	require.NoError(t, err)
	var created conduit.ArticleEnvelope
	require.NoError(t, resp.Decode(&created))
	slug := created.Article.Slug
	t.Cleanup(func() {
		_ = fx.API.Path("/articles/" + slug).Delete(context.Background(), http.StatusNoContent)
	})

	fx.Expect.ShouldEqual(created.Article.Title, title)
	fx.Expect.ShouldHaveSlugFor(title, slug)

	resp, err = fx.API.Path("/articles/" + slug).Get(ctx, http.StatusOK)
	require.NoError(t, err)
	var fetched conduit.ArticleEnvelope
	require.NoError(t, resp.Decode(&fetched))
	fx.Expect.ShouldEqual(fetched.Article.Title, title)
}
