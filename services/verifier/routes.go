// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verifier

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the verifier endpoints on the router group.
//
// Routes:
//
//	POST /v1/factcheck     - Run one verification
//	GET  /v1/factcheck/:id - Fetch a persisted report
//
// Example:
//
//	handlers := verifier.NewHandlers(checker, reportStore)
//	v1 := router.Group("/v1")
//	verifier.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	factcheck := rg.Group("/factcheck")
	{
		factcheck.POST("", handlers.HandleCheck)
		factcheck.GET("/:id", handlers.HandleGetReport)
	}
}
