package solana

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicKeyBase58(t *testing.T) {
	pk, err := PublicKeyFromBase58("pythWSnswVUd12oZpeFP8e9CVaEqJg25g1Vtc2biRsT")
	require.NoError(t, err)
	assert.Equal(t, "pythWSnswVUd12oZpeFP8e9CVaEqJg25g1Vtc2biRsT", pk.String())
	assert.False(t, pk.IsZero())

	assert.Equal(t, "11111111111111111111111111111111", PublicKey{}.String())
	assert.True(t, PublicKey{}.IsZero())

	_, err = PublicKeyFromBase58("abc")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
	_, err = PublicKeyFromBase58("0OIl")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestPublicKeyJSON(t *testing.T) {
	pk := MustPublicKeyFromBase58("7UVimffxr9ow1uXYxsr4LHAcV58mLzhmwaeKvJ1pjLiE")
	raw, err := json.Marshal(pk)
	require.NoError(t, err)
	assert.Equal(t, `"7UVimffxr9ow1uXYxsr4LHAcV58mLzhmwaeKvJ1pjLiE"`, string(raw))

	var back PublicKey
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Equals(pk))

	assert.Error(t, json.Unmarshal([]byte(`"short"`), &back))
}

func TestFindProgramAddress(t *testing.T) {
	program := MustPublicKeyFromBase58("pythWSnswVUd12oZpeFP8e9CVaEqJg25g1Vtc2biRsT")
	feedID, err := hex.DecodeString("ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d")
	require.NoError(t, err)

	tests := []struct {
		name     string
		shard    uint16
		expected string
		bump     uint8
	}{
		{name: "sponsored shard", shard: 0, expected: "7UVimffxr9ow1uXYxsr4LHAcV58mLzhmwaeKvJ1pjLiE", bump: 252},
		{name: "protocol shard", shard: 3301, expected: "Fukv2oL7WUhHZtwH8UZZCuQqNdrrG8wu3FqqkktoVE1Z", bump: 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shard := make([]byte, 2)
			binary.LittleEndian.PutUint16(shard, tt.shard)

			pda, bump, err := FindProgramAddress([][]byte{shard, feedID}, program)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, pda.String())
			assert.Equal(t, tt.bump, bump)
			assert.False(t, IsOnCurve(pda[:]))
		})
	}
}

func TestCreateProgramAddressSeedLimits(t *testing.T) {
	program := MustPublicKeyFromBase58("pythWSnswVUd12oZpeFP8e9CVaEqJg25g1Vtc2biRsT")

	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, program)
	assert.ErrorIs(t, err, ErrInvalidSeeds)

	_, err = CreateProgramAddress(make([][]byte, MaxSeeds+1), program)
	assert.ErrorIs(t, err, ErrInvalidSeeds)
}

func TestIsOnCurve(t *testing.T) {
	// a regular wallet key is a curve point
	assert.True(t, IsOnCurve(MustPublicKeyFromBase58("pythWSnswVUd12oZpeFP8e9CVaEqJg25g1Vtc2biRsT").Bytes()))
	assert.False(t, IsOnCurve([]byte{1, 2, 3}))
}
