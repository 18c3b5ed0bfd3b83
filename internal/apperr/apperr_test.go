package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("create order: %w", Validation("firstName", "mobile"))

	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, []string{"firstName", "mobile"}, FieldsOf(err))
	assert.Contains(t, err.Error(), "firstName, mobile")
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Nil(t, FieldsOf(errors.New("boom")))
}

func TestIs_MatchesKind(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("order not found"))

	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.False(t, errors.Is(err, &Error{Kind: KindConflict}))
}

func TestUnwrap_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := PaymentUnavailable("stripe unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "stripe unreachable: dial tcp: timeout", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:         http.StatusBadRequest,
		KindPaymentNotSettled:  http.StatusPaymentRequired,
		KindPaymentUnavailable: http.StatusServiceUnavailable,
		KindNotFound:           http.StatusNotFound,
		KindInvalidTransition:  http.StatusConflict,
		KindUnauthorized:       http.StatusUnauthorized,
		KindForbidden:          http.StatusForbidden,
		KindInternal:           http.StatusInternalServerError,
	}
	for k, want := range cases {
		assert.Equal(t, want, HTTPStatus(k), string(k))
	}
}
