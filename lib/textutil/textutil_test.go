package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "janedoe", NormalizeName("Jane Doe"))
	require.Equal(t, "janedoe", NormalizeName("  JANE\tDOE \n"))
	require.NotEqual(t, NormalizeName("Jane Doe"), NormalizeName("Jane Smith"))
	require.Equal(t, "", NormalizeName("   "))
}

func TestCollapseWhitespace(t *testing.T) {
	require.Equal(t, "a b c", CollapseWhitespace("  a \n\t b   c "))
	require.Equal(t, "", CollapseWhitespace(""))
	require.Equal(t, "unchanged", CollapseWhitespace("unchanged"))
}
