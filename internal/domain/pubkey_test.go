package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const raydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

func TestParsePubkey_RoundTrip(t *testing.T) {
	p, err := ParsePubkey(raydiumAMMV4)
	require.NoError(t, err)
	assert.Equal(t, raydiumAMMV4, p.String())
	assert.False(t, p.IsZero())
}

func TestParsePubkey_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not base58", "0OIl"},
		{"too short", "abc"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePubkey(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestPubkey_JSON(t *testing.T) {
	type wrapper struct {
		Owner Pubkey `json:"owner"`
	}
	in := wrapper{Owner: MustPubkey(raydiumAMMV4)}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner":"`+raydiumAMMV4+`"}`, string(data))

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Owner, out.Owner)
}

func TestPubkeyFromBytes_Length(t *testing.T) {
	_, err := PubkeyFromBytes(make([]byte, 31))
	assert.Error(t, err)

	p, err := PubkeyFromBytes(make([]byte, 32))
	require.NoError(t, err)
	assert.True(t, p.IsZero())
}
