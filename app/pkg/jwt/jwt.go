// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package jwt provides helpers for generating and parsing admin operator tokens.
package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/seakee/triggerd/app"
)

// OperatorClaims identifies the holder of an admin HTTP API token.
type OperatorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// GenerateOperatorToken creates a signed JWT for an admin operator.
//
// Parameters:
//   - name: operator identity embedded in the token.
//   - expireTime: token lifetime in seconds.
//
// Returns:
//   - token: signed JWT string.
//   - err: signing error.
//
// Example:
//
//	token, err := jwt.GenerateOperatorToken("ops", 3600)
func GenerateOperatorToken(name string, expireTime time.Duration) (token string, err error) {
	expTime := time.Now().Add(expireTime * time.Second)
	claims := OperatorClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "triggerd",
		},
	}

	tokenClaims := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	jwtSecret := []byte(app.GetConfig().System.JwtSecret)

	return tokenClaims.SignedString(jwtSecret)
}

// ParseOperatorAuth parses and validates an admin operator JWT token.
//
// Parameters:
//   - token: JWT string from request authorization header.
//
// Returns:
//   - *OperatorClaims: parsed claims when token is valid.
//   - error: parsing or signature validation error.
func ParseOperatorAuth(token string) (*OperatorClaims, error) {
	jwtSecret := []byte(app.GetConfig().System.JwtSecret)

	tokenClaims, err := jwt.ParseWithClaims(token, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})

	if tokenClaims != nil {
		if claims, ok := tokenClaims.Claims.(*OperatorClaims); ok && tokenClaims.Valid {
			return claims, nil
		}
	}

	return nil, err
}
