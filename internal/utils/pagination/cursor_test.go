package pagination_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proximityhq/proximity-backend/internal/utils/pagination"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	token, err := pagination.Encode(pagination.Cursor{MessageID: "abc", CreatedUnix: 1700000000000})
	require.NoError(t, err)

	c, err := pagination.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "abc", c.MessageID)
	assert.Equal(t, int64(1700000000000), c.CreatedUnix)
}

func TestDecode_EmptyTokenIsFirstPage(t *testing.T) {
	c, err := pagination.Decode("")
	require.NoError(t, err)
	assert.Equal(t, pagination.Cursor{}, c)
}

func TestDecode_BadTokenIsSentinel(t *testing.T) {
	_, err := pagination.Decode("not base64 at all!!")
	assert.ErrorIs(t, err, pagination.ErrInvalidToken)

	// valid base64 but not a cursor
	_, err = pagination.Decode("bm90LWpzb24=")
	assert.ErrorIs(t, err, pagination.ErrInvalidToken)
}
