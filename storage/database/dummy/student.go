package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/student"
)

type studentRepository struct {
	db *studentTable
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db.student}
}

func (repo *studentRepository) query() []student.Student {
	students := make([]student.Student, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		students = append(students, *s)
	}
	return students
}

func (repo *studentRepository) GetStudent(_ context.Context, filter student.GetFilter) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.IsEmpty() {
		return student.Student{}, student.ErrNotFound
	}
	if filter.ID != "" {
		s, ok := repo.db.table[filter.ID]
		if !ok || !matches(*s, filter) {
			return student.Student{}, student.ErrNotFound
		}
		return *s, nil
	}
	for _, s := range repo.db.table {
		if matches(*s, filter) {
			return *s, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func matches(s student.Student, f student.GetFilter) bool {
	return (f.ID == "" || s.ID == f.ID) &&
		(f.StudentID == "" || s.StudentID == f.StudentID) &&
		(f.Name == "" || s.Name == f.Name) &&
		(f.Pin == "" || s.Pin == f.Pin) &&
		(f.Branch == "" || s.Branch == f.Branch)
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.QueryFilter, ordering ...core.DBOrdering) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var students []student.Student
	for _, s := range repo.query() {
		if filter.Match(s) {
			students = append(students, s)
		}
	}
	sortStudents(students, ordering)
	return students, nil
}

// sortStudents defaults to the most recently created first.
func sortStudents(students []student.Student, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}, {Field: "student_id", Ascending: true}}
	}
	sort.SliceStable(students, func(i, j int) bool {
		a, b := students[i], students[j]
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case "student_id":
				cmp = compareStrings(a.StudentID, b.StudentID)
			case "name":
				cmp = compareStrings(a.Name, b.Name)
			case "branch":
				cmp = compareStrings(a.Branch, b.Branch)
			case "created_at":
				cmp = compareInt64(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return false
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
