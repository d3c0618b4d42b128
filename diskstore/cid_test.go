package diskstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AudiusProject/creator-node/core/common"
)

func TestComputeCIDIsDeterministic(t *testing.T) {
	data := []byte("some track segment bytes")
	cid := ComputeCID(data)
	require.Equal(t, cid, ComputeCID(data))
	require.True(t, IsValidCID(cid), "computed cid %q must be well formed", cid)
	require.NotEqual(t, cid, ComputeCID([]byte("some track segment bytez")))
}

func TestIsValidCID(t *testing.T) {
	valid := ComputeCID([]byte("x"))
	require.True(t, IsValidCID(valid))

	for _, cid := range []string{
		"",
		"QmTooShort",
		valid + "a",                   // too long
		"Zz" + valid[2:],              // wrong prefix
		valid[:10] + "0" + valid[11:], // 0 is not base58btc
		valid[:10] + "O" + valid[11:], // neither is O
		valid[:10] + "I" + valid[11:],
		valid[:10] + "l" + valid[11:],
	} {
		require.False(t, IsValidCID(cid), "cid %q must be rejected", cid)
	}
}

func TestValidateCIDErrorCode(t *testing.T) {
	err := ValidateCID("not-a-cid")
	require.Error(t, err)
	require.Equal(t, common.ErrInvalidCIDCode, common.ErrCode(err))
	require.NoError(t, ValidateCID(ComputeCID([]byte("x"))))
}
