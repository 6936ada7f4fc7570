package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/course"
	"github.com/trezcool/campus/core/user"
	"github.com/trezcool/campus/storage/database"
)

// columns courses can be ordered by
var courseOrderingFields = map[string]bool{
	"id":         true,
	"name":       true,
	"created_by": true,
	"created_at": true,
}

type courseRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

type classRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CourseID  string    `db:"course_id"`
	TaughtBy  string    `db:"taught_by"`
	CreatedAt time.Time `db:"created_at"`
}

type documentRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedBy string    `db:"created_by"`
	ClassID   string    `db:"class_id"`
	FilePath  string    `db:"file_path"`
	FileType  string    `db:"file_type"`
	CreatedAt time.Time `db:"created_at"`
}

type courseRepository struct {
	db   core.DB
	conf core.DatabaseConfig
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db core.DB, conf core.DatabaseConfig) *courseRepository {
	return &courseRepository{db: db, conf: conf}
}

func (repo courseRepository) insert(ctx context.Context, query string, row interface{}) error {
	return database.Do(ctx, repo.conf, func(ctx context.Context) error {
		_, err := sqlx.NamedExecContext(ctx, repo.db, query, row)
		return err
	})
}

func (repo courseRepository) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	q := repo.db.Rebind(query)
	err := database.Do(ctx, repo.conf, func(ctx context.Context) error {
		return repo.db.GetContext(ctx, dest, q, args...)
	})
	return database.TrapNoRows(err, course.ErrNotFound, "finding record")
}

func (repo courseRepository) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	q := repo.db.Rebind(query)
	return database.Do(ctx, repo.conf, func(ctx context.Context) error {
		return repo.db.SelectContext(ctx, dest, q, args...)
	})
}

// Courses

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.CreatedAt = c.CreatedAt.UTC()
	err := repo.insert(ctx,
		"INSERT INTO courses (id, name, created_by, created_at) VALUES (:id, :name, :created_by, :created_at)",
		courseRow(c))
	switch {
	case err == nil:
		return c, nil
	case database.IsUniqueViolation(err):
		return course.Course{}, course.ErrCourseExists
	case database.IsForeignKeyViolation(err):
		return course.Course{}, course.ErrInvalidReference
	}
	return course.Course{}, errors.Wrap(err, "inserting course")
}

func (repo courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	if err := repo.get(ctx, &row, "SELECT id, name, created_by, created_at FROM courses WHERE id = ?", id); err != nil {
		return course.Course{}, err
	}
	return unboilCourse(row), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, ordering []core.DBOrdering) ([]course.Course, error) {
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if courseOrderingFields[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	orderList = append(orderList, "id ASC")

	var rows []courseRow
	err := repo.selectAll(ctx, &rows,
		"SELECT id, name, created_by, created_at FROM courses ORDER BY "+strings.Join(orderList, ", "))
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, unboilCourse(r))
	}
	return courses, nil
}

// Classes

func (repo courseRepository) CreateClass(ctx context.Context, cls course.Class) (course.Class, error) {
	cls.CreatedAt = cls.CreatedAt.UTC()
	err := repo.insert(ctx,
		"INSERT INTO classes (id, name, course_id, taught_by, created_at) VALUES (:id, :name, :course_id, :taught_by, :created_at)",
		classRow(cls))
	if database.IsForeignKeyViolation(err) {
		return course.Class{}, course.ErrInvalidReference
	}
	if err != nil {
		return course.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo courseRepository) GetClass(ctx context.Context, id string) (course.Class, error) {
	var row classRow
	if err := repo.get(ctx, &row, "SELECT id, name, course_id, taught_by, created_at FROM classes WHERE id = ?", id); err != nil {
		return course.Class{}, err
	}
	return unboilClass(row), nil
}

func (repo courseRepository) QueryClasses(ctx context.Context, courseID string) ([]course.Class, error) {
	var rows []classRow
	err := repo.selectAll(ctx, &rows,
		"SELECT id, name, course_id, taught_by, created_at FROM classes WHERE course_id = ? ORDER BY created_at ASC, id ASC",
		courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]course.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, unboilClass(r))
	}
	return classes, nil
}

func (repo courseRepository) IsOwner(ctx context.Context, professor, courseID string) (bool, error) {
	var count int
	err := repo.get(ctx, &count, "SELECT COUNT(*) FROM classes WHERE course_id = ? AND taught_by = ?", courseID, professor)
	if err != nil {
		return false, errors.Wrap(err, "checking course ownership")
	}
	return count > 0, nil
}

// Documents

func (repo courseRepository) CreateDocument(ctx context.Context, doc course.Document) (course.Document, error) {
	doc.CreatedAt = doc.CreatedAt.UTC()
	err := repo.insert(ctx,
		"INSERT INTO documents (id, name, created_by, class_id, file_path, file_type, created_at) "+
			"VALUES (:id, :name, :created_by, :class_id, :file_path, :file_type, :created_at)",
		documentRow(doc))
	if database.IsForeignKeyViolation(err) {
		return course.Document{}, course.ErrInvalidReference
	}
	if err != nil {
		return course.Document{}, errors.Wrap(err, "inserting document")
	}
	return doc, nil
}

func (repo courseRepository) GetDocument(ctx context.Context, id string) (course.Document, error) {
	var row documentRow
	err := repo.get(ctx, &row,
		"SELECT id, name, created_by, class_id, file_path, file_type, created_at FROM documents WHERE id = ?", id)
	if err != nil {
		return course.Document{}, err
	}
	return unboilDocument(row), nil
}

func (repo courseRepository) QueryDocuments(ctx context.Context, classID string) ([]course.Document, error) {
	var rows []documentRow
	err := repo.selectAll(ctx, &rows,
		"SELECT id, name, created_by, class_id, file_path, file_type, created_at FROM documents "+
			"WHERE class_id = ? ORDER BY created_at ASC, id ASC",
		classID)
	if err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	docs := make([]course.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, unboilDocument(r))
	}
	return docs, nil
}

func (repo courseRepository) DeleteDocument(ctx context.Context, id string) error {
	q := repo.db.Rebind("DELETE FROM documents WHERE id = ?")
	var affected int64
	err := database.Do(ctx, repo.conf, func(ctx context.Context) error {
		res, err := repo.db.ExecContext(ctx, q, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return errors.Wrap(err, "deleting document")
	}
	if affected == 0 {
		return course.ErrNotFound
	}
	return nil
}

// Reset runs in a single transaction so a failure leaves everything in place.
func (repo courseRepository) Reset(ctx context.Context) ([]string, error) {
	var paths []string
	err := database.Do(ctx, repo.conf, func(ctx context.Context) (err error) {
		tx, err := repo.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()

		paths = paths[:0]
		if err = tx.SelectContext(ctx, &paths, "SELECT file_path FROM documents"); err != nil {
			return err
		}
		for _, q := range []string{
			"DELETE FROM documents",
			"DELETE FROM classes",
			"UPDATE users SET course = NULL",
			"DELETE FROM courses",
		} {
			if _, err = tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM users WHERE role <> ?"), string(user.RoleAdmin)); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, errors.Wrap(err, "resetting data")
	}
	return paths, nil
}

func unboilCourse(row courseRow) course.Course {
	c := course.Course(row)
	c.CreatedAt = c.CreatedAt.UTC()
	return c
}

func unboilClass(row classRow) course.Class {
	cls := course.Class(row)
	cls.CreatedAt = cls.CreatedAt.UTC()
	return cls
}

func unboilDocument(row documentRow) course.Document {
	doc := course.Document(row)
	doc.CreatedAt = doc.CreatedAt.UTC()
	return doc
}
