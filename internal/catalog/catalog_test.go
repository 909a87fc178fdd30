package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredValidate_RejectsDuplicateTimeKey(t *testing.T) {
	_, err := NewStructured(
		[]Key{{"volume", "total_ops"}, {"volume", "total_ops"}},
		nil, nil, nil,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volume:total_ops")
}

func TestStructuredValidate_RejectsKeyInBothAxes(t *testing.T) {
	_, err := NewStructured(
		[]Key{{"lun", "read_align_histo"}},
		[]Key{{"lun", "read_align_histo"}},
		nil, nil,
	)
	require.Error(t, err)
}

func TestStructuredValidate_RejectsCounterInTwoGroups(t *testing.T) {
	_, err := NewStructured(nil, nil, []CounterGroup{
		{ID: "a", Object: "system", Counters: []string{"nfs_ops"}},
		{ID: "b", Object: "system", Counters: []string{"nfs_ops"}},
	}, nil)
	require.Error(t, err)
}

func TestStructuredLookup(t *testing.T) {
	c, err := NewStructured(
		[]Key{{"volume", "total_ops"}},
		[]Key{{"lun", "read_align_histo"}},
		[]CounterGroup{{ID: "IOPS", Object: "system", Counters: []string{"nfs_ops", "cifs_ops"}}},
		nil,
	)
	require.NoError(t, err)

	k, ok := c.LookupOverTime("volume", "total_ops")
	assert.True(t, ok)
	assert.Equal(t, "volume:total_ops", k.ChartID())

	_, ok = c.LookupOverTime("volume", "write_data")
	assert.False(t, ok)

	_, ok = c.LookupOverBucket("lun", "read_align_histo")
	assert.True(t, ok)

	id, ok := c.LookupGroup("system", "cifs_ops")
	assert.True(t, ok)
	assert.Equal(t, "IOPS", id)

	_, ok = c.LookupGroup("system", "disk_busy")
	assert.False(t, ok)
}

func TestBuiltinCatalogsValidate(t *testing.T) {
	assert.NotPanics(t, func() { ASUPXML() })
	assert.NotPanics(t, func() { ASUPJSON() })
	assert.NotPanics(t, func() { Legacy7Mode() })

	groups, err := Sysstat()
	require.NoError(t, err)
	assert.Len(t, groups, 3)
}

func TestPerfstatLookup(t *testing.T) {
	p := Perfstat()

	a, ok := p.Lookup("volume", "read_data")
	require.True(t, ok)
	assert.Equal(t, "b/s", a.Unit)
	assert.Equal(t, "MB/s", a.DisplayUnit)
	assert.Equal(t, 1e6, a.Scale)

	_, ok = p.Lookup("volume", "write_data")
	assert.False(t, ok)

	_, ok = p.Lookup("disk", "disk_busy")
	assert.False(t, ok)
}
