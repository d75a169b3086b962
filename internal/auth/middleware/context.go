package auth

import (
	"context"

	"github.com/mind-engage/coursestats/internal/rbac"
	"github.com/mind-engage/coursestats/internal/stats"
)

type ctxKey string

const ctxKeySub ctxKey = "sub"

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxKeySub); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// CallerFromContext assembles the authenticated caller.
func CallerFromContext(ctx context.Context) stats.Caller {
	return stats.Caller{Subject: SubjectFromContext(ctx), Role: rbac.RoleFromContext(ctx)}
}
