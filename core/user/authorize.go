package user

import "github.com/trezcool/campus/core"

var (
	errNotAuthenticated = "authentication required"
	errPermissionDenied = "permission denied"
)

// Authorize gates an operation on the resolved User's role.
// A nil usr (unresolved session) is an AuthenticationError; a role outside allowed is an AuthorizationError.
// An empty allowed set admits any authenticated User.
func Authorize(usr *User, allowed ...Role) (User, error) {
	if usr == nil || usr.Username == "" {
		return User{}, core.NewAuthenticationError(errNotAuthenticated)
	}
	if len(allowed) == 0 || usr.Role.In(allowed...) {
		return *usr, nil
	}
	return User{}, core.NewAuthorizationError(errPermissionDenied)
}
