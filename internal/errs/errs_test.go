package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var allCodes = []Code{InvalidArgument, Unauthenticated, NotFound, AlreadyExists, RateLimited, Upstream, Internal}

func genMessage(t *rapid.T, label string) string {
	return rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, label)
}

func testCodeSurvivesWrapping(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := genMessage(t, "message")
	cause := errors.New(genMessage(t, "cause"))
	depth := rapid.IntRange(0, 3).Draw(t, "depth")

	err := Wrap(code, message, cause)
	for i := 0; i < depth; i++ {
		err = fmt.Errorf("layer %d: %w", i, err)
	}

	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf = %q, want %q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf = %q, want %q", got, message)
	}
	if !Is(err, code) {
		t.Fatalf("Is(err, %q) = false", code)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through errors.Is")
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeSurvivesWrapping)
}

func testUntypedErrorsAreInternal(t *rapid.T) {
	raw := rapid.StringMatching(`[a-zA-Z0-9 _:\-./]{1,80}`).Draw(t, "raw")
	err := fmt.Errorf("sqlite: %w", errors.New(raw))

	if got := CodeOf(err); got != Internal {
		t.Fatalf("CodeOf(untyped) = %q", got)
	}
	if got := MessageOf(err); got != "internal error" {
		t.Fatalf("MessageOf(untyped) = %q leaks detail", got)
	}
	if Is(err, Internal) {
		t.Fatal("Is(untyped, Internal) should be false")
	}
}

func TestUntypedErrorsAreInternal(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testUntypedErrorsAreInternal)
}

func TestNilAndEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Internal, CodeOf(nil))
	assert.Equal(t, "internal", MessageOf(nil))
	assert.False(t, Is(nil, Internal))

	var nilErr *Error
	assert.Equal(t, "", nilErr.Error())
	assert.Nil(t, nilErr.Unwrap())

	assert.Equal(t, Internal, CodeOf(&Error{Message: "no code"}))
	assert.Equal(t, "not_found", (&Error{Code: NotFound}).Error())
	assert.Equal(t, "boom", (&Error{Code: Upstream, Err: errors.New("boom")}).Error())
	assert.Equal(t, "internal error", MessageOf(&Error{Code: Upstream, Err: errors.New("boom")}))
}

func TestNewf(t *testing.T) {
	t.Parallel()
	err := Newf(NotFound, "note %d not found", 42)
	assert.Equal(t, NotFound, CodeOf(err))
	assert.Equal(t, "note 42 not found", MessageOf(err))
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	for code, want := range map[Code]int{
		InvalidArgument:        http.StatusBadRequest,
		Unauthenticated:        http.StatusUnauthorized,
		NotFound:               http.StatusNotFound,
		AlreadyExists:          http.StatusConflict,
		RateLimited:            http.StatusTooManyRequests,
		Upstream:               http.StatusInternalServerError,
		Internal:               http.StatusInternalServerError,
		Code("something_else"): http.StatusInternalServerError,
	} {
		assert.Equal(t, want, HTTPStatus(code), code)
	}
}
