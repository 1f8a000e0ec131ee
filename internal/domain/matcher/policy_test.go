package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stamped struct {
	id string
	at time.Time
}

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestSelect_Empty(t *testing.T) {
	_, ok, err := Select(First, nil, func(s stamped) time.Time { return s.at })
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSelect_First(t *testing.T) {
	items := []stamped{{"a", day(1)}, {"b", day(5)}}
	got, ok, err := Select(First, items, func(s stamped) time.Time { return s.at })
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got.id)
}

func TestSelect_MostRecent(t *testing.T) {
	items := []stamped{{"a", day(1)}, {"c", day(9)}, {"b", day(5)}}
	got, ok, err := Select(MostRecent, items, func(s stamped) time.Time { return s.at })
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c", got.id)
}

func TestSelect_RequireUnique(t *testing.T) {
	one := []stamped{{"a", day(1)}}
	got, ok, err := Select(RequireUnique, one, func(s stamped) time.Time { return s.at })
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got.id)

	two := []stamped{{"a", day(1)}, {"b", day(2)}}
	_, _, err = Select(RequireUnique, two, func(s stamped) time.Time { return s.at })
	assert.Error(t, err)
}

func TestParseSelectionPolicy(t *testing.T) {
	p, err := ParseSelectionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, First, p)

	p, err = ParseSelectionPolicy("most-recent")
	require.NoError(t, err)
	assert.Equal(t, MostRecent, p)

	p, err = ParseSelectionPolicy("require-unique")
	require.NoError(t, err)
	assert.Equal(t, RequireUnique, p)

	_, err = ParseSelectionPolicy("latest")
	assert.Error(t, err)
}
