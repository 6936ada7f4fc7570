package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/user"
)

type (
	registerRequest struct {
		Username  string    `json:"username"`
		Password  string    `json:"password"`
		FirstName string    `json:"first_name"`
		LastName  string    `json:"last_name"`
		Role      user.Role `json:"role"`
		Course    string    `json:"course"`
	}

	registerResponse struct {
		Username string `json:"username"`
	}

	loginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	loginResponse struct {
		Role         user.Role `json:"role"`
		SessionToken string    `json:"session_token"`
	}

	checkResponse struct {
		Authenticated bool      `json:"authenticated"`
		Role          user.Role `json:"role,omitempty"`
	}

	successResponse struct {
		Success string `json:"success"`
	}
)

type authApi struct {
	svc     user.Service
	cookies *sessionCookies
}

func registerAuthAPI(g *echo.Group, svc user.Service, cookies *sessionCookies) {
	api := authApi{svc: svc, cookies: cookies}

	// un-authed endpoints
	g.POST("/register", api.register)
	g.POST("/login", api.login())
	g.POST("/login/student", api.login(user.RoleStudent))
	g.POST("/login/professor", api.login(user.StaffRoles...))
	g.POST("/logout", api.logout)
	g.GET("/check", api.check)

	// authed endpoints
	g.GET("/me", api.me, requireRoles())
}

// Handlers

// register is the public sign-up: it only ever creates students.
func (api *authApi) register(ctx echo.Context) error {
	var data registerRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to registerRequest")
	}
	if data.Role != "" && data.Role != user.RoleStudent {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "only students can register"})
	}

	usr, err := api.svc.Register(ctx.Request().Context(), user.NewUser{
		Username:  data.Username,
		Password:  data.Password,
		FirstName: data.FirstName,
		LastName:  data.LastName,
		Role:      user.RoleStudent,
		Course:    data.Course,
	})
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	registrationsTotal.Inc()
	return ctx.JSON(http.StatusCreated, registerResponse{Username: usr.Username})
}

// login returns the handler of a login endpoint restricted to roles (any role when empty).
func (api *authApi) login(roles ...user.Role) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data loginRequest
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to loginRequest")
		}
		if err := core.Validate.Struct(data); err != nil {
			return err
		}

		usr, token, err := api.svc.Login(ctx.Request().Context(), data.Username, data.Password, roles...)
		if err != nil {
			if core.IsAuthenticationError(err) {
				loginsTotal.WithLabelValues("failure").Inc()
			}
			return errors.Wrap(err, "logging in")
		}
		loginsTotal.WithLabelValues("success").Inc()

		if err = api.cookies.set(ctx, token, usr.SessionExpiresAt); err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, loginResponse{Role: usr.Role, SessionToken: token})
	}
}

func (api *authApi) logout(ctx echo.Context) error {
	if token := contextToken(ctx); token != "" {
		if err := api.svc.Logout(ctx.Request().Context(), token); err != nil {
			return errors.Wrap(err, "logging out")
		}
	}
	api.cookies.clear(ctx)
	return ctx.JSON(http.StatusOK, successResponse{Success: "logged out"})
}

func (api *authApi) check(ctx echo.Context) error {
	usr := contextUser(ctx)
	if usr == nil {
		return ctx.JSON(http.StatusOK, checkResponse{})
	}
	return ctx.JSON(http.StatusOK, checkResponse{Authenticated: true, Role: usr.Role})
}

func (api *authApi) me(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}
