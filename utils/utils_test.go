package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-access-key")

func sign(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestCheckAndExtractTokenMetadata(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	token := sign(t, jwt.SigningMethodHS512, jwt.MapClaims{"id": "alice", "otp": true, "exp": exp})

	meta, err := CheckAndExtractTokenMetadata(token, secret)
	require.NoError(t, err)
	assert.Equal(t, &TokenMetadata{Id: "alice", Otp: true, Exp: exp}, meta)
}

func TestCheckAndExtractTokenMetadata_Rejects(t *testing.T) {
	cases := map[string]string{
		"expired":    sign(t, jwt.SigningMethodHS512, jwt.MapClaims{"id": "alice", "exp": time.Now().Add(-time.Minute).Unix()}),
		"wrong alg":  sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"id": "alice"}),
		"missing id": sign(t, jwt.SigningMethodHS512, jwt.MapClaims{"otp": false}),
		"garbage":    "not.a.token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := CheckAndExtractTokenMetadata(token, secret)
			assert.Error(t, err)
		})
	}

	other := sign(t, jwt.SigningMethodHS512, jwt.MapClaims{"id": "alice"})
	_, err := CheckAndExtractTokenMetadata(other, []byte("another-key"))
	assert.Error(t, err)
}

func TestDecodePayload(t *testing.T) {
	var out struct {
		ChatID  string `json:"chatId"`
		IsLiked bool   `json:"isLiked"`
	}
	require.NoError(t, DecodePayload([]any{map[string]any{"chatId": "c1", "isLiked": true, "extra": 1}}, &out))
	assert.Equal(t, "c1", out.ChatID)
	assert.True(t, out.IsLiked)

	assert.ErrorIs(t, DecodePayload(nil, &out), ErrMissingPayload)
	assert.Error(t, DecodePayload([]any{"just a string"}, &out))
}

func TestUserIDArg(t *testing.T) {
	id, err := UserIDArg([]any{"alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	id, err = UserIDArg([]any{map[string]any{"userId": "bob"}})
	require.NoError(t, err)
	assert.Equal(t, "bob", id)

	id, err = UserIDArg([]any{float64(42)})
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	_, err = UserIDArg(nil)
	assert.ErrorIs(t, err, ErrMissingPayload)
}
