// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/seakee/triggerd/app/pkg/e"
	apiJWT "github.com/seakee/triggerd/app/pkg/jwt"
)

// CheckOperatorAuth returns middleware that validates the Authorization
// header against an admin operator JWT, the same bearer-token shape the
// teacher used for its server-app tokens (app/pkg/jwt), repurposed here
// for a single class of caller: the operator of the admin HTTP surface.
//
// Returns:
//   - gin.HandlerFunc: middleware that aborts unauthorized requests.
func (m middleware) CheckOperatorAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		errCode, err := checkByToken(c)
		if errCode != e.SUCCESS {
			m.i18n.JSON(c, errCode, nil, err)
			c.Abort()
			return
		}

		c.Next()
	}
}

// checkByToken validates an operator JWT token and injects its identity
// into the Gin context.
//
// Parameters:
//   - c: current Gin context carrying HTTP headers.
//
// Returns:
//   - errCode: application-level error code.
//   - err: parsing or validation error, nil on success.
func checkByToken(c *gin.Context) (errCode int, err error) {
	errCode = e.InvalidParams

	token := c.Request.Header.Get("Authorization")
	if token != "" {
		var claims *apiJWT.OperatorClaims

		errCode = e.SUCCESS

		claims, err = apiJWT.ParseOperatorAuth(token)
		if err != nil {
			switch err {
			case jwt.ErrTokenExpired:
				errCode = e.OperatorAuthorizationExpired
			default:
				errCode = e.OperatorUnauthorized
			}
		} else {
			c.Set("operator_name", claims.Name)
		}
	}

	return
}
