package bridgeerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_CarriesKindNoCause(t *testing.T) {
	err := New(InputInvalid, "bad symbol")
	assert.Equal(t, InputInvalid, KindOf(err))
	assert.Contains(t, err.Error(), "bad symbol")
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ExchangeQueryFailed, "query failed", nil))
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := Wrap(ExchangeQueryFailed, "balance query", cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, ExchangeQueryFailed, KindOf(wrapped))
}

func TestIs_MatchesKind(t *testing.T) {
	err := New(Critical, "fail-safe exhausted")
	assert.True(t, Is(err, Critical))
	assert.False(t, Is(err, RiskRejected))
}

func TestKindOf_PlainErrorHasNoKind(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestError_MultiLevelWrapPreservesOuterKind(t *testing.T) {
	inner := New(ExchangeOrderFailed, "order rejected")
	outer := Wrap(Critical, "fail-safe cascade", inner)
	assert.Equal(t, Critical, KindOf(outer), "KindOf must report the outermost kind")
	assert.ErrorIs(t, outer, inner)
}
