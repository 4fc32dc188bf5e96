package chain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexToBytes32(t *testing.T) {
	conditionID := "0x" + strings.Repeat("ab", 32)

	got, err := hexToBytes32(conditionID)
	require.NoError(t, err)
	require.Equal(t, byte(0xab), got[0])
	require.Equal(t, byte(0xab), got[31])

	// Prefix is optional.
	unprefixed, err := hexToBytes32(strings.Repeat("ab", 32))
	require.NoError(t, err)
	require.Equal(t, got, unprefixed)
}

func TestHexToBytes32RejectsBadInput(t *testing.T) {
	_, err := hexToBytes32("0x1234")
	require.Error(t, err)

	_, err = hexToBytes32("0x" + strings.Repeat("zz", 32))
	require.Error(t, err)
}
