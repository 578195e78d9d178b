package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	valid := []string{"2099-01-10", "2024-02-29", "0001-01-01"}
	for _, in := range valid {
		d, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, d.String())
	}

	invalid := []string{
		"",
		"2099-1-10",
		"2099/01/10",
		"10-01-2099",
		"2023-02-29",
		"2099-13-01",
		"2099-01-32",
		"2099-01-10T00:00:00Z",
		" 2099-01-10",
	}
	for _, in := range invalid {
		_, err := ParseDate(in)
		assert.Error(t, err, "%q should be rejected", in)
	}
}

func TestDateOrdering(t *testing.T) {
	a := NewDate(2099, time.January, 10)
	b := a.AddDays(1)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(NewDate(2099, time.January, 10)))
	assert.Equal(t, NewDate(2099, time.February, 1), NewDate(2099, time.January, 31).AddDays(1))
	assert.Equal(t, NewDate(2098, time.December, 31), a.AddDays(-10))
}

func TestDateOf_UsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	instant := time.Date(2099, time.January, 9, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, NewDate(2099, time.January, 9), DateOf(instant))
	assert.Equal(t, NewDate(2099, time.January, 10), DateOf(instant.In(tokyo)))
}

func TestDate_JSONAndSQL(t *testing.T) {
	d := NewDate(2099, time.January, 10)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"2099-01-10"`, string(raw))

	var decoded Date
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, d, decoded)
	assert.Error(t, json.Unmarshal([]byte(`"2099-1-10"`), &decoded))

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2099-01-10", v)

	var scanned Date
	require.NoError(t, scanned.Scan(time.Date(2099, time.January, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, d, scanned)
	require.NoError(t, scanned.Scan([]byte("2099-01-11")))
	assert.Equal(t, d.AddDays(1), scanned)
	assert.Error(t, scanned.Scan(42))
}
