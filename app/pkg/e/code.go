// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package e defines business and HTTP error codes used in API responses.
package e

const (
	// Generic status codes.
	BUSY          = -1
	SUCCESS       = 0
	ERROR         = 500
	InvalidParams = 400

	// Operator authorization errors for the admin HTTP surface.
	OperatorUnauthorized         = 10001
	OperatorAuthorizationExpired = 10002
	OperatorAuthorizationFail    = 10003

	// Engine-domain errors surfaced through the admin HTTP API.
	ScriptNotFound     = 20001
	ManifestInvalid    = 20002
	LockGroupBusy      = 20003
	ScriptAlreadyExists = 20004
)
