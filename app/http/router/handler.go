// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package router wires HTTP route groups and registers controller handlers.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/seakee/triggerd/app/engine"
	"github.com/seakee/triggerd/app/http/middleware"
	"github.com/seakee/triggerd/app/logstore"
	"github.com/seakee/triggerd/app/registry"
	"github.com/seakee/triggerd/app/service/report"
	"github.com/sk-pkg/i18n"
	"github.com/sk-pkg/logger"
)

// Core carries the shared dependencies every route group's handlers need.
type Core struct {
	Logger     *logger.Manager
	I18n       *i18n.Manager
	Middleware middleware.Middleware

	Registry *registry.Registry
	LogStore *logstore.Store
	Engine   *engine.Engine
	LocksDir string
	Report   report.Sink // nil when the optional MySQL report sink is disabled.
}

// New registers the public token exchange and the operator-authenticated
// admin API.
//
// Parameters:
//   - mux: gin engine that receives route registrations.
//   - core: shared dependency container for handlers.
//
// Returns:
//   - *gin.Engine: the same engine after route registration.
//
// Example:
//
//	router.New(mux, core)
func New(mux *gin.Engine, core *Core) *gin.Engine {
	api := mux.Group("api/v1")

	api.GET("ping", func(c *gin.Context) {
		core.I18n.JSON(c, 0, nil, nil)
	})

	authGroup(api.Group(""), core)

	protected := api.Group("")
	protected.Use(core.Middleware.CheckOperatorAuth())
	adminGroup(protected, core)

	return mux
}
