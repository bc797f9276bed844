// Package tenantscope derives the single tenant context for an operation.
// Downstream stores take the tenant ID as a non-optional parameter, so a
// forgotten filter is a compile error rather than a data leak; this package
// is the only place a tenant identity is ever derived from a request.
package tenantscope

import (
	"context"

	id "limscore/pkg/domain"
	dErrors "limscore/pkg/domain-errors"
	"limscore/pkg/requestcontext"
)

// Resolve returns the acting tenant and principal for the current request.
//
// Fails with CodeTenantUnresolved when no tenant can be derived and the
// caller is not a recognized platform-level principal. A principal without a
// tenant is only valid for platform operators, which the lifecycle engine
// does not serve.
func Resolve(ctx context.Context) (id.TenantID, id.Principal, error) {
	tenantID := requestcontext.TenantID(ctx)
	userID := requestcontext.UserID(ctx)

	if tenantID.IsNil() {
		return id.TenantID{}, id.Principal{}, dErrors.New(dErrors.CodeTenantUnresolved, "no tenant in request context")
	}
	if userID.IsNil() {
		return id.TenantID{}, id.Principal{}, dErrors.New(dErrors.CodeTenantUnresolved, "no acting user in request context")
	}

	role, admin := splitRole(requestcontext.UserRole(ctx))
	p := id.Principal{
		UserID:      userID,
		TenantID:    tenantID,
		Role:        role,
		VendorAdmin: admin,
	}
	return tenantID, p, nil
}

// splitRole maps the upstream role label onto a Role plus the admin bit.
// "vendor_admin" is not an operational role; it elevates whatever role the
// user otherwise holds.
func splitRole(label string) (id.Role, bool) {
	if label == "vendor_admin" {
		return "", true
	}
	role, _ := id.ParseRole(label)
	return role, false
}
