package middleware

import "context"

type adminKey struct{}

// Admin is the caller identity AdminAuth attaches to the request context.
type Admin struct {
	Subject string
	Role    string
}

func WithAdmin(ctx context.Context, subject, role string) context.Context {
	return context.WithValue(ctx, adminKey{}, Admin{Subject: subject, Role: role})
}

// AdminFromContext reports false for anonymous shopper requests.
func AdminFromContext(ctx context.Context) (Admin, bool) {
	a, ok := ctx.Value(adminKey{}).(Admin)
	return a, ok
}

func SubjectFromContext(ctx context.Context) string {
	a, _ := AdminFromContext(ctx)
	return a.Subject
}

func RoleFromContext(ctx context.Context) string {
	a, _ := AdminFromContext(ctx)
	return a.Role
}
