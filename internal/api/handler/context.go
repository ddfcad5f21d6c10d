package handler

import (
	"context"

	"github.com/presenceguard/presenceguard/internal/api/middleware"
)

// GetUserID retrieves the authenticated principal's ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// GetUserRole retrieves the authenticated principal's role from the context.
// This is a convenience wrapper around middleware.GetUserRole.
func GetUserRole(ctx context.Context) string {
	return middleware.GetUserRole(ctx)
}
