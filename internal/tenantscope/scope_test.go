package tenantscope

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "limscore/pkg/domain"
	dErrors "limscore/pkg/domain-errors"
	"limscore/pkg/requestcontext"
)

func TestResolve(t *testing.T) {
	tenantID := id.TenantID(uuid.New())
	userID := id.UserID(uuid.New())

	ctx := context.Background()
	ctx = requestcontext.WithTenantID(ctx, tenantID)
	ctx = requestcontext.WithUserID(ctx, userID)
	ctx = requestcontext.WithUserRole(ctx, "scientist")

	gotTenant, principal, err := Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, tenantID, gotTenant)
	assert.Equal(t, userID, principal.UserID)
	assert.Equal(t, id.RoleScientist, principal.Role)
	assert.False(t, principal.VendorAdmin)
}

func TestResolveVendorAdmin(t *testing.T) {
	ctx := context.Background()
	ctx = requestcontext.WithTenantID(ctx, id.TenantID(uuid.New()))
	ctx = requestcontext.WithUserID(ctx, id.UserID(uuid.New()))
	ctx = requestcontext.WithUserRole(ctx, "vendor_admin")

	_, principal, err := Resolve(ctx)
	require.NoError(t, err)
	assert.True(t, principal.VendorAdmin)
}

func TestResolveFailsWithoutTenant(t *testing.T) {
	ctx := requestcontext.WithUserID(context.Background(), id.UserID(uuid.New()))

	_, _, err := Resolve(ctx)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantUnresolved))
}

func TestResolveFailsWithoutUser(t *testing.T) {
	ctx := requestcontext.WithTenantID(context.Background(), id.TenantID(uuid.New()))

	_, _, err := Resolve(ctx)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantUnresolved))
}
