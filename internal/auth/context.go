// internal/auth/context.go
//
// Request-scoped subject helper.
//
// Usage
// -----
//     // Bearer middleware attaches the verified subject.
//     ctx = auth.WithSubject(ctx, "psn_3f0c…")
//
//     // Handlers retrieve it.
//     sub, ok := auth.Subject(ctx)
//
// Notes
// -----
// • The subject is always a pseudonym, never a raw Firebase UID.

package auth

import "context"

// subjectKey is unexported to avoid context-key collisions.
type subjectKey struct{}

// WithSubject returns a new context carrying sub.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey{}, sub)
}

// Subject extracts the subject from ctx.  It returns ("", false) if none is
// set.
func Subject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok && sub != ""
}
