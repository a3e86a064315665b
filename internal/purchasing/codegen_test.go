package purchasing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextCode(t *testing.T) {
	require.Equal(t, "PUR-000001", NextCode(""))
	require.Equal(t, "PUR-000002", NextCode("PUR-000001"))
	require.Equal(t, "PUR-000100", NextCode("PUR-000099"))
	require.Equal(t, "PUR-1000000", NextCode("PUR-999999"))

	// Unparseable history restarts the sequence.
	require.Equal(t, "PUR-000001", NextCode("PUR-A1B2C3D4"))
	require.Equal(t, "PUR-000001", NextCode("LEGACY-42"))
}

func TestRandomCode(t *testing.T) {
	code := RandomCode()
	require.True(t, strings.HasPrefix(code, "PUR-"))
	require.Len(t, code, len("PUR-")+8)
	require.NotEqual(t, code, RandomCode())
}
