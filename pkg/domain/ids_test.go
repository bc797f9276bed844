package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	raw := uuid.NewString()

	tenantID, err := ParseTenantID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, tenantID.String())

	resultID, err := ParseResultID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, resultID.String())

	assignmentID, err := ParseAssignmentID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, assignmentID.String())

	userID, err := ParseUserID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, userID.String())
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not-a-uuid", "123", "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"} {
		_, err := ParseTenantID(input)
		assert.Error(t, err, "input %q", input)
		_, err = ParseResultID(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestIsNil(t *testing.T) {
	assert.True(t, TenantID{}.IsNil())
	assert.True(t, ResultID{}.IsNil())
	assert.False(t, NewResultID().IsNil())
	assert.False(t, TenantID(uuid.New()).IsNil())
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("lab_manager")
	assert.True(t, ok)
	assert.Equal(t, RoleLabManager, role)

	_, ok = ParseRole("janitor")
	assert.False(t, ok)
}

func FuzzParseResultID(f *testing.F) {
	f.Add(uuid.NewString())
	f.Add("")
	f.Add("not-a-uuid")
	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseResultID(input)
		if err == nil {
			// Valid inputs must survive a round trip through String.
			reparsed, err2 := ParseResultID(id.String())
			require.NoError(t, err2)
			assert.Equal(t, id, reparsed)
		}
	})
}
