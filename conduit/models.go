// Package conduit holds the models and contracts of the Conduit blogging API
// that the suite exercises, plus helpers to log in and build payloads.
package conduit

import "time"

type Profile struct {
	Username  string  `json:"username"`
	Bio       *string `json:"bio"`
	Image     *string `json:"image"`
	Following bool    `json:"following"`
}

type Article struct {
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Body           string    `json:"body"`
	TagList        []string  `json:"tagList"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Favorited      bool      `json:"favorited"`
	FavoritesCount int       `json:"favoritesCount"`
	Author         Profile   `json:"author"`
}

type ArticleEnvelope struct {
	Article Article `json:"article"`
}

type ArticleList struct {
	Articles      []Article `json:"articles"`
	ArticlesCount int       `json:"articlesCount"`
}

// Contains reports whether an article with slug is in the page.
func (l ArticleList) Contains(slug string) bool {
	_, ok := l.Find(slug)
	return ok
}

// Find returns the article with slug.
func (l ArticleList) Find(slug string) (Article, bool) {
	for _, a := range l.Articles {
		if a.Slug == slug {
			return a, true
		}
	}
	return Article{}, false
}

type TagList struct {
	Tags []string `json:"tags"`
}

type User struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Token    string  `json:"token"`
	Bio      *string `json:"bio"`
	Image    *string `json:"image"`
}

type UserEnvelope struct {
	User User `json:"user"`
}

// Credentials is the body of /users/login and, with Username, of /users.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

type CredentialsEnvelope struct {
	User Credentials `json:"user"`
}

// ErrorsEnvelope is the 4xx body: field name to messages.
type ErrorsEnvelope struct {
	Errors map[string][]string `json:"errors"`
}
