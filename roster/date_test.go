package roster_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/court-roster/roster"
)

func TestParseDate(t *testing.T) {
	d, err := roster.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, roster.NewDate(2024, time.February, 29), d)
	assert.Equal(t, "2024-02-29", d.String())

	for _, bad := range []string{"", "2024-2-29", "02/29/2024", "2023-02-29", "yesterday"} {
		_, err := roster.ParseDate(bad)
		assert.ErrorIs(t, err, roster.ErrInvalidDate, bad)
	}
}

func TestParseOptionalDate_EmptyIsZero(t *testing.T) {
	d, err := roster.ParseOptionalDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())
	assert.Equal(t, "", d.String())
}

func TestDate_Between_InclusiveBounds(t *testing.T) {
	start := roster.MustParseDate("2024-01-01")
	end := roster.MustParseDate("2024-01-10")

	assert.True(t, start.Between(start, end))
	assert.True(t, end.Between(start, end))
	assert.True(t, roster.MustParseDate("2024-01-05").Between(start, end))
	assert.False(t, roster.MustParseDate("2023-12-31").Between(start, end))
	assert.False(t, roster.MustParseDate("2024-01-11").Between(start, end))
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		On roster.Date `json:"on"`
	}

	b, err := json.Marshal(wrapper{On: roster.MustParseDate("2024-03-01")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"on":"2024-03-01"}`, string(b))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"on":null}`), &w))
	assert.True(t, w.On.IsZero())

	err = json.Unmarshal([]byte(`{"on":"03/01/2024"}`), &w)
	assert.ErrorIs(t, err, roster.ErrInvalidDate)
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := assert.AnError
	err := roster.Storage("write cell", cause)

	assert.True(t, roster.IsStorageFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, roster.Storage("noop", nil))
	assert.Same(t, err, roster.Storage("outer", err))
}
