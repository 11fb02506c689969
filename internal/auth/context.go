package auth

import "context"

type contextKey string

const (
	contextKeyAccount contextKey = "auth.account_id"
	contextKeySubject contextKey = "auth.subject"
)

// LocalAccount is the account used when no JWT secret is configured.
const LocalAccount = "local"

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, accountID, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyAccount, accountID)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// AccountIDFromContext extracts the account id from context.
func AccountIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if accountID, ok := ctx.Value(contextKeyAccount).(string); ok {
		return accountID
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if subject, ok := ctx.Value(contextKeySubject).(string); ok {
		return subject
	}
	return ""
}
