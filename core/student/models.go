package student

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/feeportal/core"
)

const DefaultCourse = "B.Tech"

type Student struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	Pin          string    `json:"pin"`
	Name         string    `json:"name"`
	Course       string    `json:"course"`
	Branch       string    `json:"branch"`
	Mobile       string    `json:"mobile"`
	PasswordHash []byte    `json:"-"`
	PhotoColor   string    `json:"photo_color"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (s *Student) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.PasswordHash = hash
	return nil
}

func (s *Student) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(s.PasswordHash, []byte(pwd))
}

// NewStudent contains information needed to enroll a new Student.
type NewStudent struct {
	StudentID string `json:"student_id" validate:"required,alphanum_"`
	Pin       string `json:"pin" validate:"required,alphanum_"`
	Name      string `json:"name" validate:"required,notblank"`
	Course    string `json:"course"`
	Branch    string `json:"branch" validate:"required,notblank"`
	Mobile    string `json:"mobile" validate:"required,mobile"`
	Password  string `json:"password" validate:"required"`
}

func (ns *NewStudent) Clean() {
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.Pin = core.CleanString(ns.Pin)
	ns.Name = core.CleanString(ns.Name)
	ns.Course = core.CleanString(ns.Course)
	if ns.Course == "" {
		ns.Course = DefaultCourse
	}
	ns.Branch = strings.ToUpper(core.CleanString(ns.Branch))
	ns.Mobile = core.CleanString(ns.Mobile)
}

// Validate cleans then validates the struct. Uniqueness is checked at enrollment, within the same unit of work.
func (ns *NewStudent) Validate(validate *validator.Validate, translator ut.Translator) error {
	ns.Clean()
	return core.TranslateValidationErrors(validate.Struct(ns), translator)
}

// Build returns the Student to persist.
func (ns NewStudent) Build() (Student, error) {
	now := core.NowFunc()
	s := Student{
		ID:         uuid.NewString(),
		StudentID:  ns.StudentID,
		Pin:        ns.Pin,
		Name:       ns.Name,
		Course:     ns.Course,
		Branch:     ns.Branch,
		Mobile:     ns.Mobile,
		PhotoColor: core.ColorFor(ns.StudentID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.SetPassword(ns.Password); err != nil {
		return Student{}, err
	}
	return s, nil
}

// GetFilter selects one Student; set fields are ANDed.
type GetFilter struct {
	ID        string
	StudentID string
	Name      string
	Pin       string
	Branch    string
}

func (gf GetFilter) IsEmpty() bool {
	return gf.ID == "" && gf.StudentID == "" && gf.Name == "" && gf.Pin == "" && gf.Branch == ""
}

type QueryFilter struct {
	Branch string `query:"branch"`
	Search string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Branch = strings.ToUpper(core.CleanString(qf.Branch))
	qf.Search = core.CleanString(qf.Search)
}

// Match reports whether s passes the filter.
// Search does a case-insensitive match on one of Name, StudentID or Pin.
func (qf QueryFilter) Match(s Student) bool {
	if qf.Branch != "" && s.Branch != qf.Branch {
		return false
	}
	if qf.Search != "" {
		q := strings.ToLower(qf.Search)
		return strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.StudentID), q) ||
			strings.Contains(strings.ToLower(s.Pin), q)
	}
	return true
}
