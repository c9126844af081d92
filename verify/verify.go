// Package verify holds the suite's assertions. Every failure message ends
// with the most recent request and response seen by the test's recorder.
package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/conduit-qa/conduit-tests/apilog"
	"github.com/conduit-qa/conduit-tests/conduit"
	"github.com/conduit-qa/conduit-tests/schema"
	"github.com/google/go-cmp/cmp"
)

// TestingT is the part of *testing.T the assertions report through.
type TestingT interface {
	Helper()
	Errorf(format string, args ...any)
}

// Expect binds assertions to a test, its recorder and its schema store.
type Expect struct {
	t        TestingT
	recorder *apilog.Recorder
	schemas  *schema.Store
}

// New returns an Expect that reports to t and logs through recorder.
// schemas may be nil when no schema assertions are made.
func New(t TestingT, recorder *apilog.Recorder, schemas *schema.Store) *Expect {
	return &Expect{t: t, recorder: recorder, schemas: schemas}
}

// ShouldEqual compares received and expected structurally. Both sides are
// passed through JSON first so decoded bodies compare equal to typed
// values with the same encoding.
func (e *Expect) ShouldEqual(received, expected any) bool {
	e.t.Helper()
	return e.report(CheckEqual(received, expected))
}

// ShouldBeLessThanOrEqual asserts that received <= bound.
func (e *Expect) ShouldBeLessThanOrEqual(received, bound any) bool {
	e.t.Helper()
	return e.report(CheckLessOrEqual(received, bound))
}

// SchemaOption adjusts ShouldMatchSchema.
type SchemaOption func(*schemaOptions)

type schemaOptions struct {
	regenerate bool
}

// Regenerate rewrites the schema file from body before validating.
func Regenerate() SchemaOption {
	return func(o *schemaOptions) { o.regenerate = true }
}

// ShouldMatchSchema validates body against the stored schema for category and name.
func (e *Expect) ShouldMatchSchema(category, name string, body any, opts ...SchemaOption) bool {
	e.t.Helper()
	var o schemaOptions
	for _, opt := range opts {
		opt(&o)
	}
	if e.schemas == nil {
		return e.report(&AssertionError{Matcher: "shouldMatchSchema", Err: errors.New("no schema store configured")})
	}
	if err := e.schemas.Validate(category, name, body, o.regenerate); err != nil {
		return e.report(&AssertionError{Matcher: "shouldMatchSchema", Err: err})
	}
	return true
}

// ShouldHaveSlugFor checks that slug is the server-derived slug of title.
func (e *Expect) ShouldHaveSlugFor(title, slug string) bool {
	e.t.Helper()
	return e.report(CheckSlug(title, slug))
}

func (e *Expect) ShouldHaveKey(body any, key string) bool {
	e.t.Helper()
	return e.report(checkKey(body, key, true))
}

func (e *Expect) ShouldNotHaveKey(body any, key string) bool {
	e.t.Helper()
	return e.report(checkKey(body, key, false))
}

func (e *Expect) report(err *AssertionError) bool {
	e.t.Helper()
	if err == nil {
		return true
	}
	if e.recorder != nil {
		err.Logs = e.recorder.RecentLogs()
	}
	e.t.Errorf("%s", err.Error())
	return false
}

// CheckEqual returns nil when received equals expected.
func CheckEqual(received, expected any) *AssertionError {
	r, errR := normalize(received)
	x, errX := normalize(expected)
	if err := errors.Join(errR, errX); err != nil {
		return &AssertionError{Matcher: "shouldEqual", Expected: expected, Received: received, Err: err}
	}
	if cmp.Equal(x, r) {
		return nil
	}
	return &AssertionError{
		Matcher:  "shouldEqual",
		Expected: expected,
		Received: received,
		Diff:     cmp.Diff(x, r),
	}
}

// CheckLessOrEqual returns nil when received <= bound. Both must be numbers.
func CheckLessOrEqual(received, bound any) *AssertionError {
	r, okR := toFloat(received)
	b, okB := toFloat(bound)
	if !okR || !okB {
		return &AssertionError{
			Matcher:  "shouldBeLessThanOrEqual",
			Expected: bound,
			Received: received,
			Err:      fmt.Errorf("cannot compare %T with %T", received, bound),
		}
	}
	if r <= b {
		return nil
	}
	return &AssertionError{
		Matcher:  "shouldBeLessThanOrEqual",
		Expected: fmt.Sprintf("<= %v", bound),
		Received: received,
	}
}

// CheckSlug returns nil when slug, minus its numeric suffix, is the slug of
// title.
func CheckSlug(title, slug string) *AssertionError {
	if conduit.SlugMatchesTitle(title, slug) {
		return nil
	}
	return &AssertionError{
		Matcher:  "shouldHaveSlugFor",
		Expected: conduit.Slugify(title) + "-<n>",
		Received: slug,
	}
}

func checkKey(body any, key string, want bool) *AssertionError {
	matcher := "shouldHaveKey"
	if !want {
		matcher = "shouldNotHaveKey"
	}
	v, err := normalize(body)
	if err != nil {
		return &AssertionError{Matcher: matcher, Expected: key, Received: body, Err: err}
	}
	obj, _ := v.(map[string]any)
	if _, has := obj[key]; has == want {
		return nil
	}
	return &AssertionError{Matcher: matcher, Expected: key, Received: body}
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f, !math.IsNaN(f)
	default:
		return 0, false
	}
}
