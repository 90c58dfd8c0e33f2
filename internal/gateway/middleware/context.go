// Package middleware implements the edge gateway pipeline spec.md §4.8
// describes: CORS, body limit, timeout, public-path bypass, rate limit,
// auth, then header injection before the request is proxied on.
package middleware

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey      contextKey = "user_id"
	TenantIDKey    contextKey = "tenant_id"
	RolesKey       contextKey = "roles"
	PermissionsKey contextKey = "permissions"
	EmailKey       contextKey = "email"
)

func GetUserID(ctx context.Context) (uuid.UUID, error) {
	val, ok := ctx.Value(UserIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("middleware: user id not found in context")
	}
	return val, nil
}

func GetTenantID(ctx context.Context) (uuid.UUID, error) {
	val, ok := ctx.Value(TenantIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("middleware: tenant id not found in context")
	}
	return val, nil
}

func GetRoles(ctx context.Context) []string {
	val, _ := ctx.Value(RolesKey).([]string)
	return val
}

func GetPermissions(ctx context.Context) []string {
	val, _ := ctx.Value(PermissionsKey).([]string)
	return val
}

func GetEmail(ctx context.Context) string {
	val, _ := ctx.Value(EmailKey).(string)
	return val
}
