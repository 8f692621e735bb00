// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package auth provides the HTTP handler that trades the configured
// operator secret for a signed admin JWT, replacing the teacher's
// multi-tenant server-app registration/token flow: triggerd's admin HTTP
// surface has exactly one class of caller (the operator), so there is
// nothing to register.
package auth

import (
	"context"
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"github.com/seakee/triggerd/app"
	"github.com/seakee/triggerd/app/pkg/e"
	"github.com/seakee/triggerd/app/pkg/jwt"
	"github.com/sk-pkg/i18n"
	"github.com/sk-pkg/logger"
)

const operatorTokenExpireSeconds = 24 * 3600

type (
	// Handler defines HTTP handlers for operator token issuance.
	Handler interface {
		// ctx builds a request-scoped context with trace metadata.
		ctx(c *gin.Context) context.Context
		// GetToken trades the configured operator secret for a JWT.
		GetToken() gin.HandlerFunc
	}

	// handler is the concrete implementation of Handler.
	handler struct {
		logger *logger.Manager
		i18n   *i18n.Manager
	}

	getTokenReqParams struct {
		Name   string `json:"name" form:"name" binding:"required"`
		Secret string `json:"secret" form:"secret" binding:"required"`
	}
)

// ctx builds a context carrying the trace ID from Gin context.
func (h handler) ctx(c *gin.Context) context.Context {
	traceID, _ := c.Get("trace_id")

	return context.WithValue(context.Background(), logger.TraceIDKey, traceID.(string))
}

// GetToken returns a Gin handler that issues an operator JWT when the
// caller presents the configured operator secret.
//
// Returns:
//   - gin.HandlerFunc: request handler for operator token issuance.
//
// Behavior:
//   - Validates request payload.
//   - Compares the presented secret against configuration in constant time.
//   - Signs and returns an operator JWT on match.
//
// Example:
//
//	router.POST("/token", authHandler.GetToken())
func (h handler) GetToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params getTokenReqParams

		errCode := e.InvalidParams
		var err error
		data := gin.H{}

		if err = c.ShouldBind(&params); err == nil {
			errCode = e.OperatorUnauthorized

			configured := app.GetConfig().System.OperatorSecret
			if configured != "" && subtle.ConstantTimeCompare([]byte(params.Secret), []byte(configured)) == 1 {
				var token string
				token, err = jwt.GenerateOperatorToken(params.Name, operatorTokenExpireSeconds)
				errCode = e.OperatorAuthorizationFail
				if err == nil {
					errCode = e.SUCCESS
					data["token"] = token
					data["expires_in"] = operatorTokenExpireSeconds
				}
			}
		}

		h.i18n.JSON(c, errCode, data, err)
	}
}

// New creates an auth handler with shared infrastructure dependencies.
//
// Parameters:
//   - logger: structured logger manager.
//   - i18n: i18n manager for localized API responses.
//
// Returns:
//   - Handler: initialized auth HTTP handler.
func New(logger *logger.Manager, i18n *i18n.Manager) Handler {
	return &handler{logger: logger, i18n: i18n}
}
