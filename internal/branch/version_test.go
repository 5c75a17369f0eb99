package branch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterflow.dev/waterflow/internal/branch"
)

func TestParseVersion(t *testing.T) {
	v, err := branch.ParseVersion("4.3")
	require.NoError(t, err)
	assert.Equal(t, 4, v.Major)
	assert.Equal(t, 3, v.Minor)
	assert.False(t, v.HasMicro)
	assert.Equal(t, "4.3", v.String())

	v, err = branch.ParseVersion("10.0.7")
	require.NoError(t, err)
	assert.True(t, v.HasMicro)
	assert.Equal(t, 7, v.Micro)
	assert.Equal(t, "10.0.7", v.String())

	_, err = branch.ParseVersion("4")
	require.Error(t, err)
	_, err = branch.ParseVersion("4.3.1.2")
	require.Error(t, err)
}

func TestVersionCompare(t *testing.T) {
	mm := func(major, minor int) branch.Version { return branch.Version{Major: major, Minor: minor} }
	mmm := func(major, minor, micro int) branch.Version {
		return branch.Version{Major: major, Minor: minor, Micro: micro, HasMicro: true}
	}

	assert.Negative(t, mm(4, 3).Compare(mm(5, 1)))
	assert.Positive(t, mm(10, 0).Compare(mm(5, 1)))
	assert.Zero(t, mm(4, 3).Compare(mm(4, 3)))

	// A bare line sorts before the same line pinned to a micro.
	assert.Negative(t, mm(4, 3).Compare(mmm(4, 3, 0)))
	assert.Negative(t, mmm(4, 3, 1).Compare(mmm(4, 3, 2)))

	assert.True(t, mmm(4, 3, 18).SameLine(mm(4, 3)))
	assert.False(t, mm(4, 3).SameLine(mm(4, 4)))
	assert.Equal(t, mm(4, 3), mmm(4, 3, 18).Line())
}
