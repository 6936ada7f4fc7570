package course

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/trezcool/campus/core"
)

type Course struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Class is a course unit taught by one professor.
type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CourseID  string    `json:"course_id"`
	TaughtBy  string    `json:"taught_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Document is a file uploaded into a Class.
type Document struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	ClassID   string    `json:"class_id"`
	FilePath  string    `json:"-"`
	FileType  string    `json:"file_type"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	ID   string `json:"id" validate:"required,max=15,alphanum_"`
	Name string `json:"name" validate:"required,notblank,max=100"`
}

func (nc *NewCourse) Validate() error {
	nc.ID = core.CleanString(nc.ID, true /* lower */)
	nc.Name = core.CleanString(nc.Name)
	return core.Validate.Struct(nc)
}

// NewClass contains information needed to create a new Class.
// TaughtBy defaults to the creating professor.
type NewClass struct {
	Name     string `json:"name" validate:"required,notblank,max=100"`
	TaughtBy string `json:"taught_by" validate:"omitempty,max=50"`
}

func (nc *NewClass) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	nc.TaughtBy = core.CleanString(nc.TaughtBy, true /* lower */)
	return core.Validate.Struct(nc)
}

// NewDocument contains an upload for a Class.
type NewDocument struct {
	Name     string    `json:"name" validate:"required,notblank,max=100"`
	Filename string    `json:"filename" validate:"required"`
	FileType string    `json:"file_type" validate:"required,max=100"`
	Content  io.Reader `json:"-"`
}

func (nd *NewDocument) Validate() error {
	if fname := core.CleanString(nd.Filename); fname != "" {
		nd.Filename = filepath.Base(fname)
	}
	nd.Name = core.CleanString(nd.Name)
	if nd.Name == "" && nd.Filename != "" {
		nd.Name = strings.TrimSuffix(nd.Filename, filepath.Ext(nd.Filename))
	}
	nd.FileType = core.CleanString(nd.FileType, true /* lower */)
	if nd.FileType == "" {
		nd.FileType = "application/octet-stream"
	}
	return core.Validate.Struct(nd)
}
