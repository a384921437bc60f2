package shared

import "context"

// Role names recognised by the platform.
const (
	RoleAgencyAdmin = "agency_admin"
	RoleAgency      = "agency"
	RoleTeamLead    = "teamlead"
	RoleTelecaller  = "telecaller"
)

// Principal identifies the authenticated caller.
type Principal struct {
	UserID   string `json:"userId"`
	AgencyID string `json:"agencyId"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the principal may override workflow rules.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAgencyAdmin
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
