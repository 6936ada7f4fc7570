package echoapi_test

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/campus/core/course"
	"github.com/trezcool/campus/core/user"
)

type courseFixture struct {
	*testEnv

	admin, prof, prof2, student, outsider user.User
	adminToken, profToken, prof2Token     string
	studentToken, outsiderToken           string

	course course.Course
	class  course.Class
}

func setupCourses(t *testing.T) *courseFixture {
	f := &courseFixture{testEnv: setup(t)}
	f.admin, f.adminToken = f.createUser(t, "root", user.RoleAdmin)
	f.prof, f.profToken = f.createUser(t, "prof", user.RoleProfessor)
	f.prof2, f.prof2Token = f.createUser(t, "prof2", user.RoleProfessor)

	var err error
	ctx := context.Background()
	f.course, err = f.courseSvc.CreateCourse(ctx, f.admin, course.NewCourse{ID: "cs101", Name: "Computer Science"})
	require.NoError(t, err)
	f.class, err = f.courseSvc.CreateClass(ctx, f.admin, f.course.ID, course.NewClass{Name: "Algorithms", TaughtBy: f.prof.Username})
	require.NoError(t, err)

	f.student, f.studentToken = f.createUser(t, "alice", user.RoleStudent, f.course.ID)
	f.outsider, f.outsiderToken = f.createUser(t, "eve", user.RoleStudent)
	return f
}

func newUploadRequest(t *testing.T, path, token, name, filename, content string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if name != "" {
		require.NoError(t, w.WriteField("name", name))
	}
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", "text/plain")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func TestCourseApi_courses(t *testing.T) {
	f := setupCourses(t)

	newCourse := func(id, name string) []byte {
		return marshallObj(t, map[string]string{"id": id, "name": name})
	}

	tests := []httpTest{
		{name: "anonymous", method: http.MethodGet, path: "/courses", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errNotAuthenticated)},
		{
			name: "student creating", method: http.MethodPost, path: "/courses", token: f.studentToken,
			body: newCourse("math", "Mathematics"), wantCode: http.StatusForbidden, wantData: marshallObj(t, errPermissionDenied),
		},
		{
			name: "invalid", method: http.MethodPost, path: "/courses", token: f.profToken,
			body: newCourse("", ""), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"id": "this field is required", "name": "this field is required"}`),
		},
		{
			name: "duplicate", method: http.MethodPost, path: "/courses", token: f.profToken,
			body: newCourse("CS101", "Again"), wantCode: http.StatusConflict,
			wantData: []byte(`{"error": "a course with this id already exists", "field": "id"}`),
		},
		{name: "unknown", method: http.MethodGet, path: "/courses/nope", token: f.studentToken, wantCode: http.StatusNotFound, wantData: marshallObj(t, errNotFound)},
	}
	runHTTPTests(t, f.testEnv, tests)

	// professor creating a course
	req, rec := newAuthRequest(http.MethodPost, "/courses", f.profToken, newCourse("MATH", "Mathematics"))
	f.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code)
	var c course.Course
	unmarshallObj(t, rec, &c)
	assert.Equal(t, "math", c.ID)
	assert.Equal(t, f.prof.Username, c.CreatedBy)

	// detail
	req, rec = newAuthRequest(http.MethodGet, "/courses/math", f.studentToken)
	f.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	unmarshallObj(t, rec, &c)
	assert.Equal(t, "Mathematics", c.Name)

	// list, ordered by name descending
	req, rec = newAuthRequest(http.MethodGet, "/courses?ordering=-name", f.studentToken)
	f.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	var courses []course.Course
	unmarshallObj(t, rec, &courses)
	require.Len(t, courses, 2)
	assert.Equal(t, "math", courses[0].ID)
	assert.Equal(t, "cs101", courses[1].ID)
}

func TestCourseApi_enroll(t *testing.T) {
	f := setupCourses(t)

	tests := []httpTest{
		{name: "professor", token: f.profToken, path: "/courses/cs101/enroll", wantCode: http.StatusForbidden},
		{name: "unknown course", token: f.outsiderToken, path: "/courses/nope/enroll", wantCode: http.StatusNotFound},
		{name: "student", token: f.outsiderToken, path: "/courses/CS101/enroll", wantCode: http.StatusOK},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
	}
	runHTTPTests(t, f.testEnv, tests)

	usr, err := f.usrSvc.GetByUsername(context.Background(), f.outsider.Username)
	require.NoError(t, err)
	assert.Equal(t, "cs101", usr.Course)
}

func TestCourseApi_classes(t *testing.T) {
	f := setupCourses(t)

	tests := []httpTest{
		{
			name: "student", method: http.MethodPost, path: "/courses/cs101/classes", token: f.studentToken,
			body: []byte(`{"name": "X"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "non owner", method: http.MethodPost, path: "/courses/cs101/classes", token: f.prof2Token,
			body: []byte(`{"name": "X"}`), wantCode: http.StatusForbidden,
			wantData: []byte(`{"error": "you do not own this course"}`),
		},
		{
			name: "assigning someone else", method: http.MethodPost, path: "/courses/cs101/classes", token: f.profToken,
			body: []byte(`{"name": "X", "taught_by": "prof2"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "admin assigning a student", method: http.MethodPost, path: "/courses/cs101/classes", token: f.adminToken,
			body: []byte(`{"name": "X", "taught_by": "alice"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"taught_by": "must be a professor or an admin"}`),
		},
		{
			name: "unknown course", method: http.MethodPost, path: "/courses/nope/classes", token: f.adminToken,
			body: []byte(`{"name": "X"}`), wantCode: http.StatusNotFound,
		},
		{
			name: "owner", method: http.MethodPost, path: "/courses/cs101/classes", token: f.profToken,
			body: []byte(`{"name": "Databases"}`), wantCode: http.StatusCreated,
		},
		{
			name: "admin assigning a professor", method: http.MethodPost, path: "/courses/cs101/classes", token: f.adminToken,
			body: []byte(`{"name": "Networks", "taught_by": "prof2"}`), wantCode: http.StatusCreated,
		},
	}
	runHTTPTests(t, f.testEnv, tests)

	req, rec := newAuthRequest(http.MethodGet, "/courses/cs101/classes", f.studentToken)
	f.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	var classes []course.Class
	unmarshallObj(t, rec, &classes)
	require.Len(t, classes, 3)
	assert.Equal(t, f.prof.Username, classes[1].TaughtBy)
	assert.Equal(t, f.prof2.Username, classes[2].TaughtBy)
}

func TestCourseApi_documents(t *testing.T) {
	f := setupCourses(t)
	classPath := "/classes/" + f.class.ID + "/documents"

	t.Run("upload requires a file", func(t *testing.T) {
		req, rec := newUploadRequest(t, classPath, f.profToken, "Notes", "", "")
		f.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: []byte(`{"file": "this field is required"}`)}, rec)
	})

	t.Run("upload over the file size limit", func(t *testing.T) {
		content := strings.Repeat("x", int(f.conf.Storage.MaxUploadSize)+100)
		req, rec := newUploadRequest(t, classPath, f.profToken, "Big", "big.txt", content)
		f.serve(req, rec)
		wantData := fmt.Sprintf(`{"file": "file is too large (max %d bytes)"}`, f.conf.Storage.MaxUploadSize)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: []byte(wantData)}, rec)
	})

	t.Run("upload over the body limit", func(t *testing.T) {
		content := strings.Repeat("x", 2*int(f.conf.Storage.MaxUploadSize))
		req, rec := newUploadRequest(t, classPath, f.profToken, "Bigger", "bigger.txt", content)
		f.serve(req, rec)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("upload by a non teacher", func(t *testing.T) {
		req, rec := newUploadRequest(t, classPath, f.prof2Token, "", "notes.txt", "hello")
		f.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	// upload
	req, rec := newUploadRequest(t, classPath, f.profToken, "Week 1", "notes.txt", "hello world")
	f.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var doc course.Document
	unmarshallObj(t, rec, &doc)
	assert.Equal(t, "Week 1", doc.Name)
	assert.Equal(t, "text/plain", doc.FileType)
	assert.Equal(t, f.prof.Username, doc.CreatedBy)

	// listing & downloading
	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{name: "admin", token: f.adminToken, wantCode: http.StatusOK},
		{name: "teacher", token: f.profToken, wantCode: http.StatusOK},
		{name: "enrolled student", token: f.studentToken, wantCode: http.StatusOK},
		{name: "other student", token: f.outsiderToken, wantCode: http.StatusForbidden},
		{name: "other professor", token: f.prof2Token, wantCode: http.StatusForbidden},
		{name: "anonymous", wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, classPath, tt.token)
			f.serve(req, rec)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				var docs []course.Document
				unmarshallObj(t, rec, &docs)
				require.Len(t, docs, 1)
				assert.Equal(t, doc.ID, docs[0].ID)
			}

			req, rec = newAuthRequest(http.MethodGet, "/documents/"+doc.ID+"/file", tt.token)
			f.serve(req, rec)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, "hello world", rec.Body.String())
				assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
				assert.Equal(t, `attachment; filename="Week 1.txt"`, rec.Header().Get("Content-Disposition"))
			}
		})
	}

	// deleting
	runHTTPTests(t, f.testEnv, []httpTest{
		{name: "delete by a student", method: http.MethodDelete, path: "/documents/" + doc.ID, token: f.studentToken, wantCode: http.StatusForbidden},
		{name: "delete by the creator", method: http.MethodDelete, path: "/documents/" + doc.ID, token: f.profToken, wantCode: http.StatusNoContent},
		{name: "delete again", method: http.MethodDelete, path: "/documents/" + doc.ID, token: f.profToken, wantCode: http.StatusNotFound},
		{name: "download deleted", method: http.MethodGet, path: "/documents/" + doc.ID + "/file", token: f.profToken, wantCode: http.StatusNotFound},
	})
}
