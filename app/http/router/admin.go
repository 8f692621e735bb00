// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package router

import (
	"github.com/gin-gonic/gin"
	"github.com/seakee/triggerd/app/http/controller/admin"
)

// adminGroup registers the operator-facing routes over the trigger engine,
// every route behind Middleware.CheckOperatorAuth.
func adminGroup(api *gin.RouterGroup, core *Core) {
	adminHandler := admin.New(core.Logger, core.I18n, core.Registry, core.LogStore, core.Engine, core.LocksDir, core.Report)

	api.GET("scripts", adminHandler.ListScripts())
	api.GET("scripts/:id", adminHandler.GetScript())
	api.POST("scripts/:id/trigger", adminHandler.Trigger())
	api.POST("scripts/:id/enabled", adminHandler.SetEnabled())
	api.GET("locks", adminHandler.Locks())
	api.GET("tail", adminHandler.Tail())
	api.GET("history", adminHandler.History())
}
