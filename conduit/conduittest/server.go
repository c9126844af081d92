// Package conduittest runs an in-process imitation of the Conduit API for
// unit tests and for the suite's "stub" mode.
package conduittest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conduit-qa/conduit-tests/conduit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// APIPrefix is where the API is mounted, matching the real service.
const APIPrefix = "/api"

type user struct {
	email        string
	username     string
	passwordHash []byte
}

type article struct {
	conduit.Article
	authorEmail string
}

// Server holds the stub's users and articles in memory.
type Server struct {
	mu       sync.Mutex
	users    map[string]*user // by email
	articles []*article       // newest first
	tags     []string
	seq      int

	secret []byte
	logger *zap.Logger
	now    func() time.Time
	router chi.Router
	http   *httptest.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger logs every request at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithUser registers an account before the server starts.
func WithUser(email, username, password string) Option {
	return func(s *Server) {
		if err := s.AddUser(email, username, password); err != nil {
			panic(fmt.Sprintf("conduittest: seeding user %s: %v", email, err))
		}
	}
}

// New builds a server seeded with the tag "Test" and a few articles by
// "Artem Bondar", which the live suite's basic assertions rely on.
func New(opts ...Option) *Server {
	s := &Server{
		users:  make(map[string]*user),
		tags:   []string{"Test"},
		secret: []byte("conduittest-secret"),
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.seed()
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// NewTestServer starts a server for the duration of t.
func NewTestServer(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := New(opts...)
	s.Start()
	t.Cleanup(s.Close)
	return s
}

// Start listens on a loopback port and returns the API base URL.
func (s *Server) Start() string {
	s.http = httptest.NewServer(s.router)
	return s.APIURL()
}

// APIURL is the base URL including the /api prefix. Empty before Start.
func (s *Server) APIURL() string {
	if s.http == nil {
		return ""
	}
	return s.http.URL + APIPrefix
}

// Client returns an HTTP client for the running server.
func (s *Server) Client() *http.Client {
	if s.http == nil {
		return http.DefaultClient
	}
	return s.http.Client()
}

// Close stops the listener.
func (s *Server) Close() {
	if s.http != nil {
		s.http.Close()
	}
}

// Handler exposes the router without a listener.
func (s *Server) Handler() http.Handler { return s.router }

// AddUser registers an account directly.
func (s *Server) AddUser(email, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[strings.ToLower(email)]; exists {
		return errors.New("email has already been taken")
	}
	s.users[strings.ToLower(email)] = &user{email: email, username: username, passwordHash: hash}
	return nil
}

// Articles returns a snapshot of the stored articles, newest first.
func (s *Server) Articles() []conduit.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conduit.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, a.Article)
	}
	return out
}

func (s *Server) seed() {
	for i, title := range []string{"Discover Bondar Academy: Your Gateway to Efficient Learning", "Test automation basics", "Welcome to Conduit"} {
		created := s.now().Add(-time.Duration(i+1) * time.Hour)
		s.seq++
		s.articles = append(s.articles, &article{Article: conduit.Article{
			Slug:        fmt.Sprintf("%s-%d", conduit.Slugify(title), s.seq),
			Title:       title,
			Description: "Seeded article",
			Body:        "Seeded body",
			TagList:     []string{"Test"},
			CreatedAt:   created,
			UpdatedAt:   created,
			Author:      conduit.Profile{Username: "Artem Bondar"},
		}})
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/users", s.register)
		r.Post("/users/login", s.login)
		r.Get("/tags", s.listTags)
		r.Get("/articles", s.listArticles)
		r.Get("/articles/{slug}", s.getArticle)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/articles", s.createArticle)
			r.Put("/articles/{slug}", s.updateArticle)
			r.Delete("/articles/{slug}", s.deleteArticle)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("conduittest request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.RequestURI()),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

// --- auth ---

type ctxKey struct{}

func (s *Server) issueToken(email string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
	})
	return token.SignedString(s.secret)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, conduit.TokenScheme)
		if !ok || raw == "" {
			writeErrors(w, http.StatusUnauthorized, "message", "missing authorization credentials")
			return
		}
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeErrors(w, http.StatusUnauthorized, "message", "invalid token")
			return
		}
		s.mu.Lock()
		u, exists := s.users[strings.ToLower(claims.Subject)]
		s.mu.Unlock()
		if !exists {
			writeErrors(w, http.StatusUnauthorized, "message", "unknown user")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func currentUser(r *http.Request) *user {
	u, _ := r.Context().Value(ctxKey{}).(*user)
	return u
}

// --- users ---

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req conduit.CredentialsEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, "body", "is invalid")
		return
	}
	creds := req.User

	problems := map[string][]string{}
	switch n := len([]rune(creds.Username)); {
	case n == 0:
		problems["username"] = append(problems["username"], "can't be blank")
	case n < 3:
		problems["username"] = append(problems["username"], "is too short (minimum is 3 characters)")
	case n > 20:
		problems["username"] = append(problems["username"], "is too long (maximum is 20 characters)")
	}
	if !strings.Contains(creds.Email, "@") {
		problems["email"] = append(problems["email"], "is invalid")
	}
	if len(creds.Password) < 8 {
		problems["password"] = append(problems["password"], "is too short (minimum is 8 characters)")
	}
	s.mu.Lock()
	_, emailTaken := s.users[strings.ToLower(creds.Email)]
	usernameTaken := false
	for _, u := range s.users {
		if u.username == creds.Username {
			usernameTaken = true
		}
	}
	s.mu.Unlock()
	if emailTaken {
		problems["email"] = append(problems["email"], "has already been taken")
	}
	if usernameTaken {
		problems["username"] = append(problems["username"], "has already been taken")
	}
	if len(problems) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, conduit.ErrorsEnvelope{Errors: problems})
		return
	}

	if err := s.AddUser(creds.Email, creds.Username, creds.Password); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, "email", err.Error())
		return
	}
	s.respondWithUser(w, http.StatusCreated, creds.Email, creds.Username)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req conduit.CredentialsEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, "body", "is invalid")
		return
	}
	s.mu.Lock()
	u, exists := s.users[strings.ToLower(req.User.Email)]
	s.mu.Unlock()
	if !exists || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.User.Password)) != nil {
		writeErrors(w, http.StatusForbidden, "email or password", "is invalid")
		return
	}
	s.respondWithUser(w, http.StatusOK, u.email, u.username)
}

func (s *Server) respondWithUser(w http.ResponseWriter, status int, email, username string) {
	token, err := s.issueToken(email)
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, "token", err.Error())
		return
	}
	writeJSON(w, status, conduit.UserEnvelope{User: conduit.User{Email: email, Username: username, Token: token}})
}

// --- tags ---

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	seen := map[string]bool{}
	tags := []string{}
	for _, t := range s.tags {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	var extra []string
	for _, a := range s.articles {
		for _, t := range a.TagList {
			if !seen[t] {
				seen[t] = true
				extra = append(extra, t)
			}
		}
	}
	s.mu.Unlock()
	sort.Strings(extra)
	tags = append(tags, extra...)
	if len(tags) > 10 {
		tags = tags[:10]
	}
	writeJSON(w, http.StatusOK, conduit.TagList{Tags: tags})
}

// --- articles ---

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	s.mu.Lock()
	total := len(s.articles)
	page := []conduit.Article{}
	for i := offset; i < total && len(page) < limit; i++ {
		page = append(page, s.articles[i].Article)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, conduit.ArticleList{Articles: page, ArticlesCount: total})
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a, _ := s.find(chi.URLParam(r, "slug"))
	var out conduit.Article
	if a != nil {
		out = a.Article
	}
	s.mu.Unlock()
	if a == nil {
		writeErrors(w, http.StatusNotFound, "article", "not found")
		return
	}
	writeJSON(w, http.StatusOK, conduit.ArticleEnvelope{Article: out})
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request) {
	var req conduit.ArticleDraftEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, "body", "is invalid")
		return
	}
	draft := req.Article
	if strings.TrimSpace(draft.Title) == "" {
		writeErrors(w, http.StatusUnprocessableEntity, "title", "can't be blank")
		return
	}
	u := currentUser(r)
	now := s.now()

	s.mu.Lock()
	a := &article{
		Article: conduit.Article{
			Slug:        s.nextSlug(draft.Title),
			Title:       draft.Title,
			Description: draft.Description,
			Body:        draft.Body,
			TagList:     append([]string{}, draft.TagList...),
			CreatedAt:   now,
			UpdatedAt:   now,
			Author:      conduit.Profile{Username: u.username},
		},
		authorEmail: u.email,
	}
	s.articles = append([]*article{a}, s.articles...)
	out := a.Article
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, conduit.ArticleEnvelope{Article: out})
}

func (s *Server) updateArticle(w http.ResponseWriter, r *http.Request) {
	var req conduit.ArticleDraftEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, "body", "is invalid")
		return
	}
	u := currentUser(r)

	s.mu.Lock()
	a, _ := s.find(chi.URLParam(r, "slug"))
	status := s.checkOwner(a, u)
	var out conduit.Article
	if status == http.StatusOK {
		draft := req.Article
		if draft.Title != "" && draft.Title != a.Title {
			a.Title = draft.Title
			a.Slug = s.nextSlug(draft.Title)
		}
		if draft.Description != "" {
			a.Description = draft.Description
		}
		if draft.Body != "" {
			a.Body = draft.Body
		}
		if draft.TagList != nil {
			a.TagList = append([]string{}, draft.TagList...)
		}
		a.UpdatedAt = s.now()
		out = a.Article
	}
	s.mu.Unlock()

	if status != http.StatusOK {
		writeOwnerError(w, status)
		return
	}
	writeJSON(w, http.StatusOK, conduit.ArticleEnvelope{Article: out})
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)

	s.mu.Lock()
	a, idx := s.find(chi.URLParam(r, "slug"))
	status := s.checkOwner(a, u)
	if status == http.StatusOK {
		s.articles = append(s.articles[:idx], s.articles[idx+1:]...)
	}
	s.mu.Unlock()

	if status != http.StatusOK {
		writeOwnerError(w, status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// find must be called with s.mu held.
func (s *Server) find(slug string) (*article, int) {
	for i, a := range s.articles {
		if a.Slug == slug {
			return a, i
		}
	}
	return nil, -1
}

// nextSlug must be called with s.mu held.
func (s *Server) nextSlug(title string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", conduit.Slugify(title), s.seq)
}

func (s *Server) checkOwner(a *article, u *user) int {
	switch {
	case a == nil:
		return http.StatusNotFound
	case !strings.EqualFold(a.authorEmail, u.email):
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}

func writeOwnerError(w http.ResponseWriter, status int) {
	if status == http.StatusNotFound {
		writeErrors(w, status, "article", "not found")
		return
	}
	writeErrors(w, status, "article", "forbidden")
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeErrors(w http.ResponseWriter, status int, field, msg string) {
	writeJSON(w, status, conduit.ErrorsEnvelope{Errors: map[string][]string{field: {msg}}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
