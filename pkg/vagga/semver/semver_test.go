package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentParsing(t *testing.T) {
	c := components("v0.4.1-28-gfba00d7")
	require := []component{
		{numeric: true, num: 0},
		{numeric: true, num: 4},
		{numeric: true, num: 1},
		{numeric: true, num: 28},
		{str: "gfba00d7"},
	}
	assert.Equal(t, require, c)
}

func TestCompareGitDescribeAgainstRelease(t *testing.T) {
	assert.True(t, Compare("v0.4.1-28-gfba00d7", "v0.4.1") > 0)
	assert.True(t, Compare("v0.4.1-28-gfba00d7", "v0.4.1-27-gtest") > 0)
	assert.True(t, Compare("v0.4.1-28-gfba00d7", "v0.4.2") < 0)
}

func TestCompareDevPreRelease(t *testing.T) {
	assert.True(t, Compare("v1.0.0-dev", "v1.0.0") < 0)
}

func TestCompareEqualIsNotLess(t *testing.T) {
	assert.False(t, Less("v0.4.1-172-ge011471", "v0.4.1-172-ge011471"))
	assert.Equal(t, 0, Compare("v0.4.1-172-ge011471", "v0.4.1-172-ge011471"))
}

func TestLessHelper(t *testing.T) {
	assert.True(t, Less("v0.4.1", "v0.4.2"))
	assert.False(t, Less("v0.4.2", "v0.4.1"))
}
