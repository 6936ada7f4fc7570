package user

import (
	"time"

	"github.com/trezcool/campus/core"
)

// Role is the authorization scope of a User.
type Role string

const (
	RoleStudent   Role = "student"
	RoleProfessor Role = "professor"
	RoleAdmin     Role = "admin"
)

var (
	AllRoles   = []Role{RoleStudent, RoleProfessor, RoleAdmin}
	StaffRoles = []Role{RoleProfessor, RoleAdmin}
)

func (r Role) IsValid() bool {
	return r.In(AllRoles...)
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, role := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// User is a student, professor or admin account.
// Course is only meaningful for students.
type User struct {
	Username         string    `json:"username"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Role             Role      `json:"role"`
	Course           string    `json:"course,omitempty"`
	PasswordHash     []byte    `json:"-"`
	SessionToken     string    `json:"-"`                    // digest of the active session token
	SessionExpiresAt time.Time `json:"-"`                    // UTC
	CreatedAt        time.Time `json:"created_at"`           // UTC
	LastLogin        time.Time `json:"last_login,omitempty"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := HashPassword(pwd)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword reports whether pwd matches the stored hash.
func (u *User) CheckPassword(pwd string) bool {
	return VerifyPassword(pwd, u.PasswordHash)
}

func (u *User) IsAdmin() bool     { return u.Role == RoleAdmin }
func (u *User) IsProfessor() bool { return u.Role == RoleProfessor }
func (u *User) IsStudent() bool   { return u.Role == RoleStudent }

// CanTeach reports whether the User may own courses and teach classes.
func (u *User) CanTeach() bool { return u.Role.In(StaffRoles...) }

func (u *User) FullName() string {
	return core.CleanString(u.FirstName + " " + u.LastName)
}

func (u *User) HasSession() bool { return u.SessionToken != "" }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username  string `json:"username" validate:"required,max=50,alphanum_"`
	Password  string `json:"password" validate:"required,max=72"`
	FirstName string `json:"first_name" validate:"required,notblank,max=50"`
	LastName  string `json:"last_name" validate:"required,notblank,max=50"`
	Role      Role   `json:"role" validate:"omitempty,role"`
	Course    string `json:"course" validate:"omitempty,max=15"`
}

func (nu *NewUser) Clean() {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Course = core.CleanString(nu.Course, true /* lower */)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}
}

func (nu *NewUser) Validate() error {
	nu.Clean()
	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	if nu.Course != "" && nu.Role != RoleStudent {
		return core.NewValidationError(nil, core.FieldError{Field: "course", Error: "only students are enrolled in a course"})
	}
	return nil
}

type QueryFilter struct {
	Search string `query:"search"`
	Roles  []Role `query:"role"`
	Course string `query:"course"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Course = core.CleanString(qf.Course, true /* lower */)
}
