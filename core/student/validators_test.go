package student_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/student"
	"github.com/trezcool/feeportal/testutil"
)

func TestNewStudent_Validate(t *testing.T) {
	validate, translator := testutil.NewValidator(testutil.NewConfig())
	valid := func() student.NewStudent {
		return student.NewStudent{
			StudentID: "S1",
			Pin:       "PIN-1",
			Name:      "Asha Rao",
			Branch:    "cse",
			Mobile:    "9876543210",
			Password:  testutil.Password,
		}
	}

	tests := []struct {
		name     string
		modify   func(ns *student.NewStudent)
		wantFlds []core.FieldError
	}{
		{name: "valid", modify: func(*student.NewStudent) {}},
		{
			name:   "bad student id",
			modify: func(ns *student.NewStudent) { ns.StudentID = "S 1" },
			wantFlds: []core.FieldError{
				{Field: "student_id", Error: "only alphanumeric characters, dashes and underscores are allowed"},
			},
		},
		{
			name:     "short mobile",
			modify:   func(ns *student.NewStudent) { ns.Mobile = "98765" },
			wantFlds: []core.FieldError{{Field: "mobile", Error: "mobile number must be exactly 10 digits"}},
		},
		{
			name:     "blank name",
			modify:   func(ns *student.NewStudent) { ns.Name = "   " },
			wantFlds: []core.FieldError{{Field: "name", Error: "this field is required"}},
		},
		{
			name:     "short password",
			modify:   func(ns *student.NewStudent) { ns.Password = "abc" },
			wantFlds: []core.FieldError{{Field: "password", Error: "password must contain at least 6 characters"}},
		},
		{
			name:     "password too similar",
			modify:   func(ns *student.NewStudent) { ns.Password = "asharao" },
			wantFlds: []core.FieldError{{Field: "password", Error: "password cannot be similar to student attributes"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := valid()
			tt.modify(&ns)
			err := ns.Validate(validate, translator)
			if tt.wantFlds == nil {
				assert.NoError(t, err)
				assert.Equal(t, "CSE", ns.Branch)
				assert.Equal(t, student.DefaultCourse, ns.Course)
				return
			}
			vErr, ok := err.(*core.ValidationError)
			if assert.True(t, ok, "err = %v", err) {
				assert.Equal(t, tt.wantFlds, vErr.Fields)
			}
		})
	}
}
