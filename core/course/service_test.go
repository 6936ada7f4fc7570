package course_test

import (
	"context"
	"io"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/course"
	"github.com/trezcool/campus/core/user"
	sqlxrepos "github.com/trezcool/campus/storage/database/sqlx"
	"github.com/trezcool/campus/storage/files"
	"github.com/trezcool/campus/testutil"
)

type fixture struct {
	svc     course.Service
	repo    course.Repository
	usrRepo user.Repository
	files   core.FileStorage

	admin, prof, prof2, student, outsider user.User
	course                                course.Course
	class                                 course.Class
}

func setup(t *testing.T) *fixture {
	db, conf := testutil.PrepareDB(t)
	ctx := context.Background()

	f := &fixture{
		repo:    sqlxrepos.NewCourseRepository(db, conf.Database),
		usrRepo: sqlxrepos.NewUserRepository(db, conf.Database),
	}
	store, err := files.NewDiskStorage(conf.Storage.Dir)
	require.NoError(t, err)
	f.files = store
	usrSvc := user.NewService(f.usrRepo, conf)
	f.svc = course.NewService(f.repo, usrSvc, f.files, testutil.NewLogger(conf))

	f.admin = testutil.CreateUser(t, f.usrRepo, "root", "", user.RoleAdmin)
	f.prof = testutil.CreateUser(t, f.usrRepo, "prof", "", user.RoleProfessor)
	f.prof2 = testutil.CreateUser(t, f.usrRepo, "prof2", "", user.RoleProfessor)

	f.course, err = f.svc.CreateCourse(ctx, f.admin, course.NewCourse{ID: "CS101", Name: "Computer Science"})
	require.NoError(t, err)
	f.class, err = f.svc.CreateClass(ctx, f.admin, f.course.ID, course.NewClass{Name: "Algorithms", TaughtBy: f.prof.Username})
	require.NoError(t, err)

	f.student = testutil.CreateUser(t, f.usrRepo, "alice", "", user.RoleStudent, f.course.ID)
	f.outsider = testutil.CreateUser(t, f.usrRepo, "eve", "", user.RoleStudent)
	return f
}

func (f *fixture) upload(t *testing.T, actor user.User, content string) course.Document {
	t.Helper()
	doc, err := f.svc.UploadDocument(context.Background(), actor, f.class.ID, course.NewDocument{
		Filename: "notes.txt",
		FileType: "text/plain",
		Content:  strings.NewReader(content),
	})
	require.NoError(t, err)
	return doc
}

func TestService_CreateCourse(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assert.Equal(t, "cs101", f.course.ID)
	assert.Equal(t, f.admin.Username, f.course.CreatedBy)

	tests := []struct {
		name    string
		actor   user.User
		nc      course.NewCourse
		errFunc func(error) bool
	}{
		{name: "student", actor: f.student, nc: course.NewCourse{ID: "x1", Name: "X"}, errFunc: core.IsAuthorizationError},
		{name: "anonymous", nc: course.NewCourse{ID: "x1", Name: "X"}, errFunc: core.IsAuthenticationError},
		{name: "duplicate", actor: f.prof, nc: course.NewCourse{ID: "cs101", Name: "Again"}, errFunc: core.IsConflictError},
		{name: "invalid id", actor: f.prof, nc: course.NewCourse{ID: "cs 101", Name: "X"}, errFunc: core.IsValidationError},
		{name: "missing name", actor: f.prof, nc: course.NewCourse{ID: "x1"}, errFunc: core.IsValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateCourse(ctx, tt.actor, tt.nc)
			assert.True(t, tt.errFunc(err), "got %v", err)
		})
	}

	c, err := f.svc.CreateCourse(ctx, f.prof, course.NewCourse{ID: "math", Name: "Mathematics"})
	require.NoError(t, err)
	assert.Equal(t, f.prof.Username, c.CreatedBy)

	courses, err := f.svc.QueryCourses(ctx, []core.DBOrdering{{Field: "name", Ascending: false}})
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "math", courses[0].ID)
	assert.Equal(t, "cs101", courses[1].ID)
}

func TestService_IsOwner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		professor string
		courseID  string
		want      bool
	}{
		{name: "teaches a class", professor: f.prof.Username, courseID: f.course.ID, want: true},
		{name: "case insensitive", professor: "PROF", courseID: "CS101", want: true},
		{name: "teaches nothing", professor: f.prof2.Username, courseID: f.course.ID},
		{name: "creator without class", professor: f.admin.Username, courseID: f.course.ID},
		{name: "unknown course", professor: f.prof.Username, courseID: "nope"},
		{name: "unknown professor", professor: "nobody", courseID: f.course.ID},
		{name: "empty", professor: "", courseID: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.IsOwner(ctx, tt.professor, tt.courseID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_CreateClass(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("owner defaults to self", func(t *testing.T) {
		cls, err := f.svc.CreateClass(ctx, f.prof, f.course.ID, course.NewClass{Name: "Databases"})
		require.NoError(t, err)
		assert.Equal(t, f.prof.Username, cls.TaughtBy)
		assert.Equal(t, f.course.ID, cls.CourseID)
		assert.NotEmpty(t, cls.ID)
	})

	t.Run("course creator", func(t *testing.T) {
		c, err := f.svc.CreateCourse(ctx, f.prof2, course.NewCourse{ID: "bio", Name: "Biology"})
		require.NoError(t, err)
		_, err = f.svc.CreateClass(ctx, f.prof2, c.ID, course.NewClass{Name: "Cells"})
		assert.NoError(t, err)
	})

	tests := []struct {
		name     string
		actor    user.User
		courseID string
		nc       course.NewClass
		errFunc  func(error) bool
	}{
		{name: "non owner", actor: f.prof2, courseID: f.course.ID, nc: course.NewClass{Name: "X"}, errFunc: core.IsAuthorizationError},
		{name: "student", actor: f.student, courseID: f.course.ID, nc: course.NewClass{Name: "X"}, errFunc: core.IsAuthorizationError},
		{
			name: "professor assigning someone else", actor: f.prof, courseID: f.course.ID,
			nc: course.NewClass{Name: "X", TaughtBy: f.prof2.Username}, errFunc: core.IsAuthorizationError,
		},
		{
			name: "admin assigning a student", actor: f.admin, courseID: f.course.ID,
			nc: course.NewClass{Name: "X", TaughtBy: f.student.Username}, errFunc: core.IsValidationError,
		},
		{
			name: "admin assigning nobody", actor: f.admin, courseID: f.course.ID,
			nc: course.NewClass{Name: "X", TaughtBy: "nobody"}, errFunc: core.IsValidationError,
		},
		{
			name: "unknown course", actor: f.admin, courseID: "nope", nc: course.NewClass{Name: "X"},
			errFunc: func(err error) bool { return err == course.ErrNotFound },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateClass(ctx, tt.actor, tt.courseID, tt.nc)
			assert.True(t, tt.errFunc(err), "got %v", err)
		})
	}

	classes, err := f.svc.QueryClasses(ctx, f.course.ID)
	require.NoError(t, err)
	assert.Len(t, classes, 2)
}

func TestService_Documents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	doc := f.upload(t, f.prof, "hello")
	assert.Equal(t, "notes", doc.Name)
	assert.Equal(t, "text/plain", doc.FileType)
	assert.Equal(t, f.prof.Username, doc.CreatedBy)
	assert.True(t, strings.HasPrefix(doc.FilePath, f.class.ID+"/"))

	t.Run("upload denied", func(t *testing.T) {
		for _, actor := range []user.User{f.prof2, f.student} {
			_, err := f.svc.UploadDocument(ctx, actor, f.class.ID, course.NewDocument{
				Filename: "x.txt", Content: strings.NewReader("x"),
			})
			assert.True(t, core.IsAuthorizationError(err), "%s: got %v", actor.Username, err)
		}
	})

	t.Run("read access", func(t *testing.T) {
		tests := []struct {
			name    string
			actor   user.User
			allowed bool
		}{
			{name: "teacher", actor: f.prof, allowed: true},
			{name: "admin", actor: f.admin, allowed: true},
			{name: "enrolled student", actor: f.student, allowed: true},
			{name: "other student", actor: f.outsider},
			{name: "other professor", actor: f.prof2},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				docs, err := f.svc.QueryDocuments(ctx, tt.actor, f.class.ID)
				_, rc, openErr := f.svc.OpenDocument(ctx, tt.actor, doc.ID)
				if !tt.allowed {
					assert.True(t, core.IsAuthorizationError(err), "got %v", err)
					assert.True(t, core.IsAuthorizationError(openErr), "got %v", openErr)
					return
				}
				require.NoError(t, err)
				require.Len(t, docs, 1)
				assert.Equal(t, doc.ID, docs[0].ID)

				require.NoError(t, openErr)
				content, err := io.ReadAll(rc)
				_ = rc.Close()
				require.NoError(t, err)
				assert.Equal(t, "hello", string(content))
			})
		}
	})

	t.Run("delete", func(t *testing.T) {
		err := f.svc.DeleteDocument(ctx, f.prof2, doc.ID)
		assert.True(t, core.IsAuthorizationError(err), "got %v", err)

		require.NoError(t, f.svc.DeleteDocument(ctx, f.prof, doc.ID))
		_, _, err = f.svc.OpenDocument(ctx, f.prof, doc.ID)
		assert.Equal(t, course.ErrNotFound, err)
		_, err = f.files.Open(ctx, doc.FilePath)
		assert.Equal(t, core.ErrFileNotFound, err)

		assert.Equal(t, course.ErrNotFound, f.svc.DeleteDocument(ctx, f.admin, doc.ID))
	})

	t.Run("long extension is dropped", func(t *testing.T) {
		ext := "." + strings.Repeat("x", 300)
		d, err := f.svc.UploadDocument(ctx, f.prof, f.class.ID, course.NewDocument{
			Name: "blob", Filename: "blob" + ext, FileType: "application/octet-stream", Content: strings.NewReader("x"),
		})
		require.NoError(t, err)
		assert.False(t, strings.HasSuffix(d.FilePath, ext))
		assert.Empty(t, path.Ext(d.FilePath))

		d, err = f.svc.UploadDocument(ctx, f.prof, f.class.ID, course.NewDocument{
			Name: "slides", Filename: "slides.PDF", FileType: "application/pdf", Content: strings.NewReader("x"),
		})
		require.NoError(t, err)
		assert.Equal(t, ".PDF", path.Ext(d.FilePath))
	})
}

func TestService_Reset(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	doc := f.upload(t, f.prof, "hello")

	_, err := f.svc.Reset(ctx, f.prof)
	assert.True(t, core.IsAuthorizationError(err), "got %v", err)

	n, err := f.svc.Reset(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	courses, err := f.svc.QueryCourses(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, courses)

	users, err := f.usrRepo.QueryUsers(ctx, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, f.admin.Username, users[0].Username)

	_, err = f.files.Open(ctx, doc.FilePath)
	assert.Equal(t, core.ErrFileNotFound, err)
}
