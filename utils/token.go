package utils

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// TokenMetadata struct to describe metadata in JWT.
type TokenMetadata struct {
	Id  string
	Otp bool
	Exp int64
}

var ErrInvalidClaims = errors.New("token claims are missing the user id")

// CheckAndExtractTokenMetadata verifies an HS512 access token signed with
// secret and returns its claims.
func CheckAndExtractTokenMetadata(token string, secret []byte) (*TokenMetadata, error) {
	t, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		return nil, err
	}

	return MetadataFromClaims(t.Claims)
}

// MetadataFromClaims reads the id, otp and exp claims.
func MetadataFromClaims(claims jwt.Claims) (*TokenMetadata, error) {
	mapClaims, ok := claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}
	id, _ := mapClaims["id"].(string)
	if id == "" {
		return nil, ErrInvalidClaims
	}

	metadata := &TokenMetadata{Id: id}
	metadata.Otp, _ = mapClaims["otp"].(bool)
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		metadata.Exp = exp.Unix()
	}
	return metadata, nil
}
