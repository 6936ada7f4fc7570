package user

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrCourseNotFound = errors.New("course does not exist")
	ErrUserReferenced = errors.New("user still owns courses or teaches classes")

	errInvalidCredentials = "invalid credentials"
	errSessionExpired     = "session expired"

	// compared against when the username is unknown, so that both failure paths cost a bcrypt round
	dummyHash     []byte
	dummyHashOnce sync.Once
)

type (
	Repository interface {
		// CreateUser inserts usr; ErrUsernameExists when the username is taken, ErrCourseNotFound when
		// usr.Course references no course.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, username string) (User, error)
		// GetUserBySession finds the User whose active session token digest is digest.
		GetUserBySession(ctx context.Context, digest string) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter) ([]User, error)
		// StartSession overwrites any previous session of the User.
		StartSession(ctx context.Context, username, digest string, expiresAt, loginAt time.Time) error
		ExtendSession(ctx context.Context, digest string, expiresAt time.Time) error
		EndSession(ctx context.Context, digest string) error
		// UpdateUser overwrites the names, role, course and password hash of usr.Username and ends its session.
		UpdateUser(ctx context.Context, usr User) error
		// UpdatePassword stores a new hash and ends the User's session.
		UpdatePassword(ctx context.Context, username string, hash []byte) error
		SetCourse(ctx context.Context, username, courseID string) error
		// CountReferences counts the courses, classes and documents referencing username.
		CountReferences(ctx context.Context, username string) (int, error)
		DeleteUser(ctx context.Context, username string) error
	}

	Service interface {
		Register(ctx context.Context, nu NewUser) (User, error)
		// Login verifies the credentials and starts a new session, returning the raw session token.
		// When roles are given the account must hold one of them.
		Login(ctx context.Context, uname, pwd string, roles ...Role) (User, string, error)
		// Resolve maps a session token back to its User. Unknown or expired tokens are AuthenticationErrors.
		Resolve(ctx context.Context, token string) (User, error)
		Logout(ctx context.Context, token string) error
		GetByUsername(ctx context.Context, uname string) (User, error)
		Query(ctx context.Context, filter *QueryFilter) ([]User, error)
		Enroll(ctx context.Context, uname, courseID string) (User, error)
		SetPassword(ctx context.Context, uname, pwd string) error
		Delete(ctx context.Context, uname string) error
	}

	service struct {
		repo     Repository
		lifetime time.Duration
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, conf *core.Config) Service {
	lifetime := conf.Server.SessionLifetime
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &service{repo: repo, lifetime: lifetime}
}

func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	if err := nu.Validate(); err != nil {
		return User{}, err
	}

	usr := User{
		Username:  nu.Username,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Role:      nu.Role,
		Course:    nu.Course,
		CreatedAt: nowFunc().UTC(),
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	switch errors.Cause(err) {
	case nil:
		return usr, nil
	case ErrUsernameExists:
		return User{}, core.NewConflictError("username", ErrUsernameExists.Error())
	case ErrCourseNotFound:
		return User{}, core.NewValidationError(err, core.FieldError{Field: "course", Error: ErrCourseNotFound.Error()})
	default:
		return User{}, errors.Wrap(err, "creating user")
	}
}

func (svc *service) Login(ctx context.Context, uname, pwd string, roles ...Role) (User, string, error) {
	usr, err := svc.repo.GetUser(ctx, core.CleanString(uname, true /* lower */))
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return User{}, "", errors.Wrap(err, "finding user by username")
		}
		dummyHashOnce.Do(func() { dummyHash, _ = HashPassword("campus.dummy.password") })
		VerifyPassword(pwd, dummyHash)
		return User{}, "", core.NewAuthenticationError(errInvalidCredentials)
	}
	if !usr.CheckPassword(pwd) {
		return User{}, "", core.NewAuthenticationError(errInvalidCredentials)
	}
	if len(roles) > 0 && !usr.Role.In(roles...) {
		return User{}, "", core.NewAuthenticationError(errInvalidCredentials)
	}

	token, err := IssueToken()
	if err != nil {
		return User{}, "", err
	}
	now := nowFunc().UTC()
	digest := digestToken(token)
	expiresAt := now.Add(svc.lifetime)
	if err = svc.repo.StartSession(ctx, usr.Username, digest, expiresAt, now); err != nil {
		return User{}, "", errors.Wrap(err, "starting session")
	}

	usr.SessionToken = digest
	usr.SessionExpiresAt = expiresAt
	usr.LastLogin = now
	return usr, token, nil
}

func (svc *service) Resolve(ctx context.Context, token string) (User, error) {
	if !validTokenFormat(token) {
		return User{}, core.NewAuthenticationError(errNotAuthenticated)
	}
	digest := digestToken(token)

	usr, err := svc.repo.GetUserBySession(ctx, digest)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.NewAuthenticationError(errNotAuthenticated)
		}
		return User{}, errors.Wrap(err, "finding user by session")
	}

	now := nowFunc().UTC()
	if !now.Before(usr.SessionExpiresAt) {
		if err = svc.repo.EndSession(ctx, digest); err != nil {
			return User{}, errors.Wrap(err, "ending expired session")
		}
		return User{}, core.NewAuthenticationError(errSessionExpired)
	}
	if sessionNeedsRefresh(usr.SessionExpiresAt, svc.lifetime, now) {
		expiresAt := now.Add(svc.lifetime)
		if err = svc.repo.ExtendSession(ctx, digest, expiresAt); err != nil {
			return User{}, errors.Wrap(err, "extending session")
		}
		usr.SessionExpiresAt = expiresAt
	}
	return usr, nil
}

func (svc *service) Logout(ctx context.Context, token string) error {
	if !validTokenFormat(token) {
		return nil
	}
	return errors.Wrap(svc.repo.EndSession(ctx, digestToken(token)), "ending session")
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]User, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *service) Enroll(ctx context.Context, uname, courseID string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	courseID = core.CleanString(courseID, true /* lower */)

	usr, err := svc.repo.GetUser(ctx, uname)
	if err != nil {
		return User{}, err
	}
	if !usr.IsStudent() {
		return User{}, core.NewAuthorizationError("only students can enroll in a course")
	}
	if err = svc.repo.SetCourse(ctx, uname, courseID); err != nil {
		if errors.Cause(err) == ErrCourseNotFound {
			return User{}, core.NewValidationError(err, core.FieldError{Field: "course", Error: err.Error()})
		}
		return User{}, errors.Wrap(err, "setting course")
	}
	usr.Course = courseID
	return usr, nil
}

func (svc *service) SetPassword(ctx context.Context, uname, pwd string) error {
	if len(pwd) > pwdMaxBytes {
		return core.NewValidationError(errors.New(pwdTooLongText), core.FieldError{Field: "password", Error: pwdTooLongText})
	}
	hash, err := HashPassword(pwd)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.repo.UpdatePassword(ctx, core.CleanString(uname, true /* lower */), hash)
}

func (svc *service) Delete(ctx context.Context, uname string) error {
	uname = core.CleanString(uname, true /* lower */)

	refs, err := svc.repo.CountReferences(ctx, uname)
	if err != nil {
		return errors.Wrap(err, "counting user references")
	}
	if refs > 0 {
		return core.NewConflictError("username", ErrUserReferenced.Error())
	}

	err = svc.repo.DeleteUser(ctx, uname)
	if errors.Cause(err) == ErrUserReferenced {
		return core.NewConflictError("username", ErrUserReferenced.Error())
	}
	return err
}
