package echoapi

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/course"
	"github.com/trezcool/campus/core/user"
)

type courseApi struct {
	svc           course.Service
	usrSvc        user.Service
	maxUploadSize int64
}

func registerCourseAPI(g *echo.Group, svc course.Service, usrSvc user.Service, maxUploadSize int64) {
	api := courseApi{
		svc:           svc,
		usrSvc:        usrSvc,
		maxUploadSize: maxUploadSize,
	}
	authed := requireRoles()
	staff := requireRoles(user.StaffRoles...)

	cg := g.Group("/courses", authed)
	cg.GET("", api.queryCourses)
	cg.POST("", api.createCourse, staff)
	cg.GET("/:id", api.retrieveCourse)
	cg.POST("/:id/enroll", api.enroll, requireRoles(user.RoleStudent))
	cg.GET("/:id/classes", api.queryClasses)
	cg.POST("/:id/classes", api.createClass, staff)

	g.GET("/classes/:id/documents", api.queryDocuments, authed)
	g.POST("/classes/:id/documents", api.uploadDocument, staff)
	g.GET("/documents/:id/file", api.downloadDocument, authed)
	g.DELETE("/documents/:id", api.deleteDocument, authed)
}

// Handlers

func (api *courseApi) queryCourses(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.QueryCourses(ctx.Request().Context(), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) createCourse(ctx echo.Context) error {
	actor, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	var data course.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}

	c, err := api.svc.CreateCourse(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieveCourse(ctx echo.Context) error {
	c, err := api.svc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	actor, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	c, err := api.svc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course")
	}

	usr, err := api.usrSvc.Enroll(ctx.Request().Context(), actor.Username, c.ID)
	if err != nil {
		return errors.Wrap(err, "enrolling user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *courseApi) queryClasses(ctx echo.Context) error {
	classes, err := api.svc.QueryClasses(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *courseApi) createClass(ctx echo.Context) error {
	actor, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	var data course.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}

	cls, err := api.svc.CreateClass(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *courseApi) queryDocuments(ctx echo.Context) error {
	actor, err := mustContextUser(ctx)
	if err != nil {
		return err
	}

	docs, err := api.svc.QueryDocuments(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying documents")
	}
	return ctx.JSON(http.StatusOK, docs)
}

// uploadDocument expects a multipart form with a `file` and an optional display `name`.
func (api *courseApi) uploadDocument(ctx echo.Context) error {
	actor, err := mustContextUser(ctx)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "file", Error: "this field is required"})
	}
	if api.maxUploadSize > 0 && fh.Size > api.maxUploadSize {
		return core.NewValidationError(nil, core.FieldError{
			Field: "file",
			Error: fmt.Sprintf("file is too large (max %d bytes)", api.maxUploadSize),
		})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = f.Close() }()

	doc, err := api.svc.UploadDocument(ctx.Request().Context(), actor, ctx.Param("id"), course.NewDocument{
		Name:     ctx.FormValue("name"),
		Filename: fh.Filename,
		FileType: fh.Header.Get(echo.HeaderContentType),
		Content:  f,
	})
	if err != nil {
		return errors.Wrap(err, "uploading document")
	}
	documentUploadsTotal.Inc()
	return ctx.JSON(http.StatusCreated, doc)
}

func (api *courseApi) downloadDocument(ctx echo.Context) error {
	actor, err := mustContextUser(ctx)
	if err != nil {
		return err
	}

	doc, rc, err := api.svc.OpenDocument(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening document")
	}
	defer func() { _ = rc.Close() }()

	fname := doc.Name + filepath.Ext(doc.FilePath)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fname))
	return ctx.Stream(http.StatusOK, doc.FileType, rc)
}

func (api *courseApi) deleteDocument(ctx echo.Context) error {
	actor, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteDocument(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	return ctx.NoContent(http.StatusNoContent)
}
