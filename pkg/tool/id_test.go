package tool

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUIDV7_ParsesAndIsMonotonicFriendly(t *testing.T) {
	id := GenerateUUIDV7()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), parsed.Version())
}

func TestGeneratePaymentReference(t *testing.T) {
	ref := GeneratePaymentReference()
	require.True(t, strings.HasPrefix(ref, "SUB-"))

	parts := strings.SplitN(ref, "-", 3)
	require.Len(t, parts, 3)
	require.Len(t, parts[2], 8)

	require.NotEqual(t, ref, GeneratePaymentReference())
}
