package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDate(t *testing.T) {
	z := NewZoneResolver()
	got, err := z.BuildDate("Mon Jan 01 00:00:00 GMT 2000")
	require.NoError(t, err)
	assert.Equal(t, 2000, got.Year())
	assert.Equal(t, time.January, got.Month())
	assert.Equal(t, "GMT", z.Label())
}

func TestBuildDateFirstZoneWins(t *testing.T) {
	z := NewZoneResolver()
	_, err := z.BuildDate("Mon Jun 05 10:00:00 CEST 2017")
	require.NoError(t, err)

	// a later GMT timestamp is converted into the pinned CEST zone
	got, err := z.BuildDate("Mon Jun 05 08:00:00 GMT 2017")
	require.NoError(t, err)
	assert.Equal(t, "CEST", z.Label())
	assert.Equal(t, 10, got.Hour())
}

func TestBuildDateUnknownZone(t *testing.T) {
	z := NewZoneResolver()
	got, err := z.BuildDate("Mon Jun 05 10:00:00 XQZ 2017")
	require.NoError(t, err)
	assert.Equal(t, UnresolvedZone, z.Label())
	// wall clock reading is kept unconverted
	assert.Equal(t, 10, got.Hour())
}

func TestBuildDateMalformed(t *testing.T) {
	z := NewZoneResolver()
	for _, bad := range []string{
		"",
		"Mon Jan 01",
		"Mon Foo 01 00:00:00 GMT 2000",
		"Mon Jan 01 00:00 GMT 2000",
		"Mon Jan 01 00:00:00 GMT year",
	} {
		_, err := z.BuildDate(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestPin(t *testing.T) {
	z := NewZoneResolver()
	assert.True(t, z.Pin("CET"))
	assert.Equal(t, "CET", z.Label())
	assert.False(t, NewZoneResolver().Pin("NOPE"))
}
