package auth

import "context"

type authContextKey struct{}

// AuthInfo is the authenticated caller. Nil limits mean the key has no
// override and server defaults apply.
type AuthInfo struct {
	KeyID      string
	UserID     string
	RPMLimit   *int
	DailyQuota *int64
}

// RPM returns the key's own per-minute limit, or def when it has none.
func (a *AuthInfo) RPM(def int) int {
	if a.RPMLimit != nil && *a.RPMLimit > 0 {
		return *a.RPMLimit
	}
	return def
}

// Quota returns the key's daily request quota, or 0 when the server
// default applies.
func (a *AuthInfo) Quota() int64 {
	if a.DailyQuota == nil || *a.DailyQuota < 0 {
		return 0
	}
	return *a.DailyQuota
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey{}, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey{}).(*AuthInfo)
	return info, ok && info != nil
}
