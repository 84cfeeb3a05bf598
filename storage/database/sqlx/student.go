package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/student"
)

const studentColumns = "id, student_id, pin, name, course, branch, mobile, password, photo_color, created_at, updated_at"

var studentOrderings = map[string]bool{"student_id": true, "name": true, "branch": true, "created_at": true}

type studentRow struct {
	ID         string    `db:"id"`
	StudentID  string    `db:"student_id"`
	Pin        string    `db:"pin"`
	Name       string    `db:"name"`
	Course     string    `db:"course"`
	Branch     string    `db:"branch"`
	Mobile     string    `db:"mobile"`
	Password   []byte    `db:"password"`
	PhotoColor string    `db:"photo_color"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r studentRow) toStudent() student.Student {
	return student.Student{
		ID:           r.ID,
		StudentID:    r.StudentID,
		Pin:          r.Pin,
		Name:         r.Name,
		Course:       r.Course,
		Branch:       r.Branch,
		Mobile:       r.Mobile,
		PasswordHash: r.Password,
		PhotoColor:   r.PhotoColor,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) GetStudent(ctx context.Context, filter student.GetFilter) (student.Student, error) {
	if filter.IsEmpty() {
		return student.Student{}, student.ErrNotFound
	}

	var conds []string
	var args []interface{}
	add := func(col, val string) {
		if val != "" {
			conds = append(conds, col+" = ?")
			args = append(args, val)
		}
	}
	add("id", filter.ID)
	add("student_id", filter.StudentID)
	add("name", filter.Name)
	add("pin", filter.Pin)
	add("branch", filter.Branch)

	q := "SELECT " + studentColumns + " FROM students WHERE " + strings.Join(conds, " AND ") + " LIMIT 1"
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), args...); err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "selecting student")
	}
	return row.toStudent(), nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, ordering ...core.DBOrdering) ([]student.Student, error) {
	q := "SELECT " + studentColumns + " FROM students WHERE 1 = 1"
	var args []interface{}
	if filter.Branch != "" {
		q += " AND branch = ?"
		args = append(args, filter.Branch)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		q += " AND (LOWER(name) LIKE ? OR LOWER(student_id) LIKE ? OR LOWER(pin) LIKE ?)"
		args = append(args, like, like, like)
	}
	q += orderBy(ordering, studentOrderings, "created_at DESC, student_id ASC")

	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	return students, nil
}

// orderBy renders an ORDER BY clause from the allowed fields only.
func orderBy(ordering []core.DBOrdering, allowed map[string]bool, fallback string) string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if allowed[ord.Field] {
			clauses = append(clauses, ord.String())
		}
	}
	if len(clauses) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}
