// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package faults

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// Respond writes err to the response as its taxonomy body with the mapped
// status code. Internal faults are logged with their cause before the
// sanitized body goes out.
func Respond(c *gin.Context, err error) {
	f := From(err)
	if f.Kind == KindInternal {
		slog.Error("internal fault", "message", f.Message, "cause", f.Cause)
	}
	c.JSON(f.HTTPStatus(), f.Body())
}

// AbortWith is Respond plus request abortion, for use in middleware.
func AbortWith(c *gin.Context, err error) {
	f := From(err)
	c.AbortWithStatusJSON(f.HTTPStatus(), f.Body())
}
