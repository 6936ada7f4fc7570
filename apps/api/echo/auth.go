package echoapi

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/user"
)

const (
	ctxUserKey  = "user"
	ctxTokenKey = "session_token"
)

// sessionCookies signs and encrypts the session token stored in the browser cookie.
type sessionCookies struct {
	name     string
	secure   bool
	lifetime time.Duration
	codec    *securecookie.SecureCookie
}

func newSessionCookies(conf *core.Config) *sessionCookies {
	hashKey := sha256.Sum256([]byte("campus.session.hash:" + conf.SecretKey))
	blockKey := sha256.Sum256([]byte("campus.session.block:" + conf.SecretKey))

	codec := securecookie.New(hashKey[:], blockKey[:])
	codec.MaxAge(int(conf.Server.SessionLifetime.Seconds()))
	return &sessionCookies{
		name:     conf.Server.CookieName,
		secure:   conf.Server.SecureCookie,
		lifetime: conf.Server.SessionLifetime,
		codec:    codec,
	}
}

// cookieSession is the cookie payload. ExpiresAt mirrors the stored session expiry
// so an extended session can be re-issued to the browser.
type cookieSession struct {
	Token     string
	ExpiresAt int64 // unix seconds
}

func (sc *sessionCookies) set(ctx echo.Context, token string, expiresAt time.Time) error {
	encoded, err := sc.codec.Encode(sc.name, cookieSession{Token: token, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return errors.Wrap(err, "encoding session cookie")
	}
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 || maxAge > int(sc.lifetime.Seconds()) {
		maxAge = int(sc.lifetime.Seconds())
	}
	ctx.SetCookie(&http.Cookie{
		Name:     sc.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sc.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (sc *sessionCookies) clear(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     sc.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sc.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// token reads the session token from the Authorization header, then from the cookie.
// Cookies that fail verification are ignored. The decoded cookie is returned when it was the source.
func (sc *sessionCookies) token(ctx echo.Context) (string, *cookieSession) {
	if auth := ctx.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
		if scheme, tok, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok), nil
		}
	}
	cookie, err := ctx.Cookie(sc.name)
	if err != nil || cookie.Value == "" {
		return "", nil
	}
	var cs cookieSession
	if err = sc.codec.Decode(sc.name, cookie.Value, &cs); err != nil || cs.Token == "" {
		return "", nil
	}
	return cs.Token, &cs
}

// sessionMiddleware resolves the presented session token, if any, into the request's User.
// Requests without a valid session go through unauthenticated; requireRoles gates them.
func sessionMiddleware(svc user.Service, cookies *sessionCookies) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token, cs := cookies.token(ctx)
			if token == "" {
				return next(ctx)
			}
			ctx.Set(ctxTokenKey, token)

			usr, err := svc.Resolve(ctx.Request().Context(), token)
			switch {
			case err == nil:
				sessionResolutionsTotal.WithLabelValues("valid").Inc()
				ctx.Set(ctxUserKey, &usr)
				// sliding expiry: the browser cookie follows the extended session
				if cs != nil && cs.ExpiresAt != usr.SessionExpiresAt.Unix() {
					if err = cookies.set(ctx, token, usr.SessionExpiresAt); err != nil {
						return err
					}
				}
			case core.IsAuthenticationError(err):
				sessionResolutionsTotal.WithLabelValues("rejected").Inc()
			default:
				return errors.Wrap(err, "resolving session")
			}
			return next(ctx)
		}
	}
}

// requireRoles rejects requests whose User is unresolved (401) or holds none of roles (403).
// No roles admits any authenticated User.
func requireRoles(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := user.Authorize(contextUser(ctx), roles...); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// contextUser returns the User resolved by sessionMiddleware, nil when unauthenticated.
func contextUser(ctx echo.Context) *user.User {
	usr, _ := ctx.Get(ctxUserKey).(*user.User)
	return usr
}

func contextToken(ctx echo.Context) string {
	token, _ := ctx.Get(ctxTokenKey).(string)
	return token
}

// mustContextUser is for handlers behind requireRoles.
func mustContextUser(ctx echo.Context) (user.User, error) {
	return user.Authorize(contextUser(ctx))
}
