package user

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/campus/core"
)

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	if err == nil {
		return nil
	}
	flds := make(map[string]string)
	switch e := err.(type) {
	case validator.ValidationErrors:
		for _, fe := range core.FieldErrors(e) {
			flds[fe.Field] = fe.Error
		}
	case *core.ValidationError:
		for _, fe := range e.Fields {
			flds[fe.Field] = fe.Error
		}
	default:
		t.Fatalf("unexpected error type %T: %v", err, err)
	}
	return flds
}

func TestNewUser_Validate(t *testing.T) {
	valid := func() NewUser {
		return NewUser{Username: "alice", Password: "pw123", FirstName: "Alice", LastName: "Doe"}
	}

	tests := []struct {
		name       string
		mutate     func(nu *NewUser)
		wantFields map[string]string
	}{
		{name: "valid", mutate: func(nu *NewUser) {}},
		{name: "valid with course", mutate: func(nu *NewUser) { nu.Course = " CS101 " }},
		{
			name:       "missing username",
			mutate:     func(nu *NewUser) { nu.Username = "" },
			wantFields: map[string]string{"username": "this field is required"},
		},
		{
			name:       "blank names",
			mutate:     func(nu *NewUser) { nu.FirstName = "   "; nu.LastName = "" },
			wantFields: map[string]string{"first_name": "this field is required", "last_name": "this field is required"},
		},
		{
			name:       "missing password",
			mutate:     func(nu *NewUser) { nu.Password = "" },
			wantFields: map[string]string{"password": "this field is required"},
		},
		{
			name:       "bad username",
			mutate:     func(nu *NewUser) { nu.Username = "al ice!" },
			wantFields: map[string]string{"username": "only alphanumeric characters and underscores are allowed"},
		},
		{
			name:       "unknown role",
			mutate:     func(nu *NewUser) { nu.Role = "janitor" },
			wantFields: map[string]string{"role": "invalid role"},
		},
		{
			name:       "password with space",
			mutate:     func(nu *NewUser) { nu.Password = "pw 123" },
			wantFields: map[string]string{"password": "password must not contain whitespace"},
		},
		{
			name:       "multibyte password over 72 bytes",
			mutate:     func(nu *NewUser) { nu.Password = "pw" + strings.Repeat("é", 40) },
			wantFields: map[string]string{"password": "password must be at most 72 bytes"},
		},
		{
			name:       "numeric password",
			mutate:     func(nu *NewUser) { nu.Password = "123456" },
			wantFields: map[string]string{"password": "password cannot be entirely numeric"},
		},
		{
			name:       "password like username",
			mutate:     func(nu *NewUser) { nu.Password = "Alice1" },
			wantFields: map[string]string{"password": "password cannot be similar to user attributes"},
		},
		{
			name:       "course on professor",
			mutate:     func(nu *NewUser) { nu.Role = RoleProfessor; nu.Course = "cs101" },
			wantFields: map[string]string{"course": "only students are enrolled in a course"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := valid()
			tt.mutate(&nu)
			err := nu.Validate()
			assert.Equal(t, tt.wantFields, fieldErrors(t, err))
		})
	}
}

func TestNewUser_Clean(t *testing.T) {
	nu := NewUser{Username: "  Alice ", FirstName: " Alice ", LastName: "Doe ", Course: " CS101"}
	nu.Clean()

	require.Equal(t, "alice", nu.Username)
	assert.Equal(t, "Alice", nu.FirstName)
	assert.Equal(t, "Doe", nu.LastName)
	assert.Equal(t, "cs101", nu.Course)
	assert.Equal(t, RoleStudent, nu.Role)
}
