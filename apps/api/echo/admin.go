package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core/course"
	"github.com/trezcool/campus/core/user"
)

type (
	newProfessorRequest struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	resetResponse struct {
		Success   string `json:"success"`
		Documents int    `json:"documents"`
	}
)

type adminApi struct {
	usrSvc    user.Service
	courseSvc course.Service
}

// registerAdminAPI expects g to be restricted to admins.
func registerAdminAPI(g *echo.Group, usrSvc user.Service, courseSvc course.Service) {
	api := adminApi{usrSvc: usrSvc, courseSvc: courseSvc}

	pg := g.Group("/professors")
	pg.GET("", api.queryProfessors)
	pg.POST("", api.createProfessor)
	pg.DELETE("/:username", api.destroyProfessor)

	g.POST("/reset", api.reset)
}

// Handlers

func (api *adminApi) queryProfessors(ctx echo.Context) error {
	filter := &user.QueryFilter{
		Search: ctx.QueryParam("search"),
		Roles:  []user.Role{user.RoleProfessor},
	}
	users, err := api.usrSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying professors")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *adminApi) createProfessor(ctx echo.Context) error {
	var data newProfessorRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to newProfessorRequest")
	}

	usr, err := api.usrSvc.Register(ctx.Request().Context(), user.NewUser{
		Username:  data.Username,
		Password:  data.Password,
		FirstName: data.FirstName,
		LastName:  data.LastName,
		Role:      user.RoleProfessor,
	})
	if err != nil {
		return errors.Wrap(err, "creating professor")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *adminApi) destroyProfessor(ctx echo.Context) error {
	actor, err := mustContextUser(ctx)
	if err != nil {
		return err
	}

	usr, err := api.usrSvc.GetByUsername(ctx.Request().Context(), ctx.Param("username"))
	if err != nil {
		return errors.Wrap(err, "finding professor")
	}
	// Say No to Suicide! admins cannot delete themselves
	if usr.Username == actor.Username {
		return errHttpForbidden
	}
	if !usr.IsProfessor() {
		return errHttpNotFound
	}

	if err = api.usrSvc.Delete(ctx.Request().Context(), usr.Username); err != nil {
		return errors.Wrap(err, "deleting professor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) reset(ctx echo.Context) error {
	actor, err := mustContextUser(ctx)
	if err != nil {
		return err
	}

	n, err := api.courseSvc.Reset(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "resetting data")
	}
	return ctx.JSON(http.StatusOK, resetResponse{Success: "all data has been reset", Documents: n})
}
