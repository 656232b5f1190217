package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a private type so middleware values cannot collide with
// context keys set by other packages.
type contextKey string

const (
	ctxAccountID contextKey = "account_id"
	ctxKeyPrefix contextKey = "key_prefix"
	ctxScopes    contextKey = "api_key_scopes"
)

// SetAccountID stores the authenticated account on the context.
// Handlers read it back with GetAccountID.
func SetAccountID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxAccountID, id)
}

// GetAccountID returns the account the auth middleware resolved. ok is
// false on requests that never passed authentication.
func GetAccountID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(ctxAccountID).(uuid.UUID)
	return id, ok
}

func withKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, ctxKeyPrefix, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(ctxKeyPrefix).(string)
	return prefix, ok
}

func withScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, ctxScopes, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(ctxScopes).([]string)
	return scopes
}

// ExportedKeyPrefixKey exposes the key-prefix context key so tests can
// seed a request without running the full auth stack.
func ExportedKeyPrefixKey() contextKey {
	return ctxKeyPrefix
}
