package student

import (
	"context"
	"errors"
	"strings"

	"github.com/trezcool/feeportal/core"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("student not found")
	ErrStudentIDExists = errors.New("a student with this id already exists")
	ErrPinExists       = errors.New("a student with this pin already exists")
)

type (
	Repository interface {
		// GetStudent returns ErrNotFound when no Student matches all the set GetFilter fields.
		GetStudent(ctx context.Context, filter GetFilter) (Student, error)
		QueryStudents(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Student, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// UniquenessError converts a repository uniqueness failure into a field ValidationError.
func UniquenessError(err error) error {
	var field string
	switch err {
	case ErrStudentIDExists:
		field = "student_id"
	case ErrPinExists:
		field = "pin"
	default:
		return err
	}
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByStudentID(ctx context.Context, studentID string) (Student, error) {
	studentID = core.CleanString(studentID)
	if studentID == "" {
		return Student{}, ErrNotFound
	}
	return svc.repo.GetStudent(ctx, GetFilter{StudentID: studentID})
}

// FindByIdentity resolves a student from the (name, pin, branch) triple admins type in.
func (svc *Service) FindByIdentity(ctx context.Context, name, pin, branch string) (Student, error) {
	filter := GetFilter{
		Name:   core.CleanString(name),
		Pin:    core.CleanString(pin),
		Branch: strings.ToUpper(core.CleanString(branch)),
	}
	if filter.Name == "" || filter.Pin == "" || filter.Branch == "" {
		return Student{}, core.NewValidationError(errors.New("name, pin and branch are required"))
	}
	return svc.repo.GetStudent(ctx, filter)
}

// QueryByBranch returns every student currently in branch.
func (svc *Service) QueryByBranch(ctx context.Context, branch string) ([]Student, error) {
	filter := QueryFilter{Branch: branch}
	filter.Clean()
	return svc.repo.QueryStudents(ctx, filter, core.DBOrdering{Field: "student_id", Ascending: true})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Student, error) {
	filter.Clean()
	return svc.repo.QueryStudents(ctx, filter, ordering...)
}
