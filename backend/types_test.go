package backend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	require.Equal(t, Version1_0, MakeVersion(1, 0))
	require.Equal(t, Version1_1, MakeVersion(1, 1))
	require.Equal(t, Version1_2, MakeVersion(1, 2))
	require.Equal(t, Version2_0, MakeVersion(2, 0))
	require.Equal(t, Version2_1, MakeVersion(2, 1))

	for _, v := range []Version{Version1_0, Version1_1, Version1_2, Version2_0, Version2_1, Version3_0} {
		require.Equal(t, v, MakeVersion(v.Major(), v.Minor()))
	}
	require.Equal(t, 1, Version1_2.Major())
	require.Equal(t, 2, Version1_2.Minor())
	require.Equal(t, "1.1", Version1_1.String())
	require.Equal(t, "1.2", Version1_2.String())
	require.Equal(t, "2.0", Version2_0.String())
	require.Equal(t, "unknown", VersionUnknown.String())
	require.Less(t, MakeVersion(1, 9), Version2_0)
}
