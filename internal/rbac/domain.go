package rbac

import (
	"sort"

	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Permission names checked by the HTTP layer.
const (
	PermEnquiryView           = "enquiry.view"
	PermEnquiryEdit           = "enquiry.edit"
	PermEnquiryOverrideStatus = "enquiry.override_status"
	PermDMCView               = "dmc.view"
	PermDMCEdit               = "dmc.edit"
	PermShareDMC              = "share.dmc"
	PermShareCustomer         = "share.customer"
	PermCommissionEdit        = "commission.edit"
	PermPaymentView           = "payment.view"
	PermPaymentRecord         = "payment.record"
	PermPaymentConfigure      = "payment.configure"
	PermItineraryGenerate     = "itinerary.generate"
	PermUserManage            = "user.manage"
)

var rolePermissions = map[string][]string{
	shared.RoleAgencyAdmin: {
		PermEnquiryView, PermEnquiryEdit, PermEnquiryOverrideStatus,
		PermDMCView, PermDMCEdit,
		PermShareDMC, PermShareCustomer, PermCommissionEdit,
		PermPaymentView, PermPaymentRecord, PermPaymentConfigure,
		PermItineraryGenerate, PermUserManage,
	},
	shared.RoleAgency: {
		PermEnquiryView, PermEnquiryEdit,
		PermDMCView, PermDMCEdit,
		PermShareDMC, PermShareCustomer, PermCommissionEdit,
		PermPaymentView, PermPaymentRecord, PermPaymentConfigure,
		PermItineraryGenerate, PermUserManage,
	},
	shared.RoleTeamLead: {
		PermEnquiryView, PermEnquiryEdit,
		PermDMCView,
		PermShareDMC, PermShareCustomer, PermCommissionEdit,
		PermPaymentView, PermPaymentRecord,
		PermItineraryGenerate,
	},
	shared.RoleTelecaller: {
		PermEnquiryView, PermEnquiryEdit,
		PermDMCView,
		PermItineraryGenerate,
	},
}

// Roles returns every known role name.
func Roles() []string {
	out := make([]string, 0, len(rolePermissions))
	for role := range rolePermissions {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// KnownRole reports whether role exists.
func KnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// EffectivePermissions returns the permission names granted to role.
func EffectivePermissions(role string) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	sort.Strings(out)
	return out
}

// Can reports whether role includes perm.
func Can(role, perm string) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
