package user

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/campus/core"
)

func TestAuthorize(t *testing.T) {
	student := &User{Username: "alice", Role: RoleStudent}
	prof := &User{Username: "bob", Role: RoleProfessor}
	admin := &User{Username: "root", Role: RoleAdmin}

	tests := []struct {
		name      string
		usr       *User
		allowed   []Role
		wantAuthn bool
		wantAuthz bool
	}{
		{name: "unresolved", usr: nil, allowed: StaffRoles, wantAuthn: true},
		{name: "unresolved (any role)", usr: nil, wantAuthn: true},
		{name: "empty user", usr: &User{}, allowed: StaffRoles, wantAuthn: true},
		{name: "student denied staff", usr: student, allowed: StaffRoles, wantAuthz: true},
		{name: "professor allowed staff", usr: prof, allowed: StaffRoles},
		{name: "admin allowed staff", usr: admin, allowed: StaffRoles},
		{name: "professor denied admin", usr: prof, allowed: []Role{RoleAdmin}, wantAuthz: true},
		{name: "student allowed student", usr: student, allowed: []Role{RoleStudent}},
		{name: "any authenticated", usr: student},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := Authorize(tt.usr, tt.allowed...)
			switch {
			case tt.wantAuthn:
				assert.True(t, core.IsAuthenticationError(err), "got %v", err)
				assert.False(t, core.IsAuthorizationError(err))
			case tt.wantAuthz:
				assert.True(t, core.IsAuthorizationError(err), "got %v", err)
				assert.False(t, core.IsAuthenticationError(err))
			default:
				assert.NoError(t, err)
				assert.Equal(t, *tt.usr, usr)
			}
		})
	}
}
