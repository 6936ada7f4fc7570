package course

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("not found")
	ErrCourseExists     = errors.New("a course with this id already exists")
	ErrInvalidReference = errors.New("referenced record does not exist")

	errNotCourseOwner   = "you do not own this course"
	errNotClassTeacher  = "you do not teach this class"
	errNotEnrolled      = "you are not enrolled in this course"
	errNotDocumentOwner = "you did not upload this document"

	nowFunc = time.Now // mockable

	maxExtLen = 16 // including the dot
)

// storedExt returns the extension kept on a stored document's key.
// Extensions longer than maxExtLen are dropped.
func storedExt(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > maxExtLen {
		return ""
	}
	return ext
}

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		QueryCourses(ctx context.Context, ordering []core.DBOrdering) ([]Course, error)
		CreateClass(ctx context.Context, cls Class) (Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		QueryClasses(ctx context.Context, courseID string) ([]Class, error)
		// IsOwner reports whether professor teaches at least one class of courseID.
		IsOwner(ctx context.Context, professor, courseID string) (bool, error)
		CreateDocument(ctx context.Context, doc Document) (Document, error)
		GetDocument(ctx context.Context, id string) (Document, error)
		QueryDocuments(ctx context.Context, classID string) ([]Document, error)
		DeleteDocument(ctx context.Context, id string) error
		// Reset deletes all documents, classes, courses and non-admin users.
		// It returns the file paths of the deleted documents.
		Reset(ctx context.Context) ([]string, error)
	}

	Service interface {
		CreateCourse(ctx context.Context, actor user.User, nc NewCourse) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		QueryCourses(ctx context.Context, ordering []core.DBOrdering) ([]Course, error)
		IsOwner(ctx context.Context, professor, courseID string) (bool, error)
		CreateClass(ctx context.Context, actor user.User, courseID string, nc NewClass) (Class, error)
		QueryClasses(ctx context.Context, courseID string) ([]Class, error)
		QueryDocuments(ctx context.Context, actor user.User, classID string) ([]Document, error)
		UploadDocument(ctx context.Context, actor user.User, classID string, nd NewDocument) (Document, error)
		OpenDocument(ctx context.Context, actor user.User, id string) (Document, io.ReadCloser, error)
		DeleteDocument(ctx context.Context, actor user.User, id string) error
		Reset(ctx context.Context, actor user.User) (int, error)
	}

	service struct {
		repo   Repository
		usrSvc user.Service
		files  core.FileStorage
		logger core.Logger
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, usrSvc user.Service, files core.FileStorage, logger core.Logger) Service {
	return &service{
		repo:   repo,
		usrSvc: usrSvc,
		files:  files,
		logger: logger,
	}
}

func (svc *service) CreateCourse(ctx context.Context, actor user.User, nc NewCourse) (Course, error) {
	if _, err := user.Authorize(&actor, user.StaffRoles...); err != nil {
		return Course{}, err
	}
	if err := nc.Validate(); err != nil {
		return Course{}, err
	}

	c, err := svc.repo.CreateCourse(ctx, Course{
		ID:        nc.ID,
		Name:      nc.Name,
		CreatedBy: actor.Username,
		CreatedAt: nowFunc().UTC(),
	})
	if errors.Cause(err) == ErrCourseExists {
		return Course{}, core.NewConflictError("id", ErrCourseExists.Error())
	}
	return c, errors.Wrap(err, "creating course")
}

func (svc *service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, core.CleanString(id, true /* lower */))
}

func (svc *service) QueryCourses(ctx context.Context, ordering []core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, ordering)
}

// IsOwner never fails for unknown courses or professors; it reports false.
func (svc *service) IsOwner(ctx context.Context, professor, courseID string) (bool, error) {
	professor = core.CleanString(professor, true /* lower */)
	courseID = core.CleanString(courseID, true /* lower */)
	if professor == "" || courseID == "" {
		return false, nil
	}
	return svc.repo.IsOwner(ctx, professor, courseID)
}

// canManageCourse: admins, the course creator and professors teaching in the course.
func (svc *service) canManageCourse(ctx context.Context, actor user.User, c Course) (bool, error) {
	switch {
	case actor.IsAdmin():
		return true, nil
	case !actor.IsProfessor():
		return false, nil
	case c.CreatedBy == actor.Username:
		return true, nil
	}
	return svc.repo.IsOwner(ctx, actor.Username, c.ID)
}

func (svc *service) CreateClass(ctx context.Context, actor user.User, courseID string, nc NewClass) (Class, error) {
	if _, err := user.Authorize(&actor, user.StaffRoles...); err != nil {
		return Class{}, err
	}
	c, err := svc.GetCourse(ctx, courseID)
	if err != nil {
		return Class{}, err
	}
	ok, err := svc.canManageCourse(ctx, actor, c)
	if err != nil {
		return Class{}, errors.Wrap(err, "checking course ownership")
	}
	if !ok {
		return Class{}, core.NewAuthorizationError(errNotCourseOwner)
	}
	if err = nc.Validate(); err != nil {
		return Class{}, err
	}

	if nc.TaughtBy == "" {
		nc.TaughtBy = actor.Username
	}
	if nc.TaughtBy != actor.Username {
		// only admins assign classes to someone else
		if !actor.IsAdmin() {
			return Class{}, core.NewAuthorizationError("professors can only create classes they teach")
		}
		teacher, err := svc.usrSvc.GetByUsername(ctx, nc.TaughtBy)
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			return Class{}, errors.Wrap(err, "finding teacher")
		}
		if err != nil || !teacher.CanTeach() {
			return Class{}, core.NewValidationError(nil, core.FieldError{Field: "taught_by", Error: "must be a professor or an admin"})
		}
	}

	cls, err := svc.repo.CreateClass(ctx, Class{
		ID:        uuid.NewString(),
		Name:      nc.Name,
		CourseID:  c.ID,
		TaughtBy:  nc.TaughtBy,
		CreatedAt: nowFunc().UTC(),
	})
	if errors.Cause(err) == ErrInvalidReference {
		return Class{}, core.NewValidationError(err, core.FieldError{Field: "taught_by", Error: "must be a professor or an admin"})
	}
	return cls, errors.Wrap(err, "creating class")
}

func (svc *service) QueryClasses(ctx context.Context, courseID string) ([]Class, error) {
	c, err := svc.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryClasses(ctx, c.ID)
}

// canReadClass: admins, the class teacher, professors managing the course and students enrolled in it.
func (svc *service) canReadClass(ctx context.Context, actor user.User, cls Class) error {
	switch {
	case actor.IsAdmin(), cls.TaughtBy == actor.Username:
		return nil
	case actor.IsStudent():
		if actor.Course == cls.CourseID {
			return nil
		}
		return core.NewAuthorizationError(errNotEnrolled)
	}

	c, err := svc.repo.GetCourse(ctx, cls.CourseID)
	if err != nil {
		return errors.Wrap(err, "finding class course")
	}
	ok, err := svc.canManageCourse(ctx, actor, c)
	if err != nil {
		return errors.Wrap(err, "checking course ownership")
	}
	if !ok {
		return core.NewAuthorizationError(errNotCourseOwner)
	}
	return nil
}

func (svc *service) QueryDocuments(ctx context.Context, actor user.User, classID string) ([]Document, error) {
	cls, err := svc.repo.GetClass(ctx, core.CleanString(classID))
	if err != nil {
		return nil, err
	}
	if err = svc.canReadClass(ctx, actor, cls); err != nil {
		return nil, err
	}
	return svc.repo.QueryDocuments(ctx, cls.ID)
}

// UploadDocument stores nd into a class the actor teaches (any class for admins).
func (svc *service) UploadDocument(ctx context.Context, actor user.User, classID string, nd NewDocument) (Document, error) {
	if _, err := user.Authorize(&actor, user.StaffRoles...); err != nil {
		return Document{}, err
	}
	cls, err := svc.repo.GetClass(ctx, core.CleanString(classID))
	if err != nil {
		return Document{}, err
	}
	if !actor.IsAdmin() && cls.TaughtBy != actor.Username {
		return Document{}, core.NewAuthorizationError(errNotClassTeacher)
	}
	if err = nd.Validate(); err != nil {
		return Document{}, err
	}

	docID := uuid.NewString()
	key := path.Join(cls.ID, docID+storedExt(nd.Filename))
	filePath, err := svc.files.Save(ctx, key, nd.Content)
	if err != nil {
		return Document{}, errors.Wrap(err, "saving document file")
	}

	doc, err := svc.repo.CreateDocument(ctx, Document{
		ID:        docID,
		Name:      nd.Name,
		CreatedBy: actor.Username,
		ClassID:   cls.ID,
		FilePath:  filePath,
		FileType:  nd.FileType,
		CreatedAt: nowFunc().UTC(),
	})
	if err != nil {
		if dErr := svc.files.Delete(ctx, filePath); dErr != nil {
			svc.logger.Warn("failed to remove orphan document file", dErr, map[string]interface{}{"path": filePath})
		}
		return Document{}, errors.Wrap(err, "creating document")
	}
	return doc, nil
}

func (svc *service) OpenDocument(ctx context.Context, actor user.User, id string) (Document, io.ReadCloser, error) {
	doc, err := svc.repo.GetDocument(ctx, core.CleanString(id))
	if err != nil {
		return Document{}, nil, err
	}
	cls, err := svc.repo.GetClass(ctx, doc.ClassID)
	if err != nil {
		return Document{}, nil, errors.Wrap(err, "finding document class")
	}
	if err = svc.canReadClass(ctx, actor, cls); err != nil {
		return Document{}, nil, err
	}

	rc, err := svc.files.Open(ctx, doc.FilePath)
	if err != nil {
		if errors.Cause(err) == core.ErrFileNotFound {
			return Document{}, nil, ErrNotFound
		}
		return Document{}, nil, errors.Wrap(err, "opening document file")
	}
	return doc, rc, nil
}

func (svc *service) DeleteDocument(ctx context.Context, actor user.User, id string) error {
	doc, err := svc.repo.GetDocument(ctx, core.CleanString(id))
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && doc.CreatedBy != actor.Username {
		return core.NewAuthorizationError(errNotDocumentOwner)
	}
	if err = svc.repo.DeleteDocument(ctx, doc.ID); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	if err = svc.files.Delete(ctx, doc.FilePath); err != nil && errors.Cause(err) != core.ErrFileNotFound {
		svc.logger.Warn("failed to remove document file", err, map[string]interface{}{"path": doc.FilePath})
	}
	return nil
}

// Reset wipes all course data and every non-admin account. Admin accounts are kept
// since they can only be provisioned out-of-band.
func (svc *service) Reset(ctx context.Context, actor user.User) (int, error) {
	if _, err := user.Authorize(&actor, user.RoleAdmin); err != nil {
		return 0, err
	}
	paths, err := svc.repo.Reset(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "resetting database")
	}
	for _, p := range paths {
		if err = svc.files.Delete(ctx, p); err != nil && errors.Cause(err) != core.ErrFileNotFound {
			svc.logger.Warn("failed to remove document file", err, map[string]interface{}{"path": p})
		}
	}
	svc.logger.Info("database reset", actor, map[string]interface{}{"documents": len(paths)})
	return len(paths), nil
}
