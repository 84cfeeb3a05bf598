package student_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/student"
	"github.com/trezcool/feeportal/testutil"
)

func studentIDs(students []student.Student) []string {
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.StudentID)
	}
	return ids
}

func TestService_GetByStudentID(t *testing.T) {
	app := testutil.NewApp(t)
	asha := app.Enroll(t, "S1", "Asha Rao", "cse", "9876543210")
	ctx := context.Background()

	tests := []struct {
		name      string
		studentID string
		wantErr   error
	}{
		{name: "found", studentID: "S1"},
		{name: "found (untrimmed)", studentID: "  S1 "},
		{name: "blank", studentID: "   ", wantErr: student.ErrNotFound},
		{name: "unknown", studentID: "S2", wantErr: student.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := app.Students.GetByStudentID(ctx, tt.studentID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, asha.ID, s.ID)
			assert.Equal(t, "CSE", s.Branch)
			assert.Equal(t, student.DefaultCourse, s.Course)
			assert.Equal(t, core.ColorFor("S1"), s.PhotoColor)
			assert.NoError(t, s.CheckPassword(testutil.Password))
		})
	}
}

func TestService_FindByIdentity(t *testing.T) {
	app := testutil.NewApp(t)
	asha := app.Enroll(t, "S1", "Asha Rao", "cse", "9876543210")
	app.Enroll(t, "S2", "Asha Rao", "ece", "9876543211")
	ctx := context.Background()

	tests := []struct {
		name           string
		sName          string
		pin            string
		branch         string
		wantID         string
		wantValidation bool
		wantNotFound   bool
	}{
		{name: "match", sName: "Asha Rao", pin: "PIN-S1", branch: "CSE", wantID: asha.ID},
		{name: "branch is case insensitive", sName: " Asha Rao ", pin: "PIN-S1", branch: "cse", wantID: asha.ID},
		{name: "wrong branch", sName: "Asha Rao", pin: "PIN-S1", branch: "ECE", wantNotFound: true},
		{name: "wrong pin", sName: "Asha Rao", pin: "PIN-S9", branch: "CSE", wantNotFound: true},
		{name: "missing name", pin: "PIN-S1", branch: "CSE", wantValidation: true},
		{name: "missing branch", sName: "Asha Rao", pin: "PIN-S1", wantValidation: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := app.Students.FindByIdentity(ctx, tt.sName, tt.pin, tt.branch)
			switch {
			case tt.wantValidation:
				assert.True(t, core.IsValidation(err), "err = %v", err)
			case tt.wantNotFound:
				assert.True(t, core.IsNotFound(err), "err = %v", err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, s.ID)
			}
		})
	}
}

func TestService_Query(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	app.Enroll(t, "S3", "Ravi Kumar", "cse", "9876543212")
	app.Enroll(t, "S1", "Asha Rao", "cse", "9876543210")
	app.Enroll(t, "S2", "Meera Nair", "ece", "9876543211")

	tests := []struct {
		name     string
		filter   student.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all by student_id", ordering: []core.DBOrdering{{Field: "student_id", Ascending: true}}, want: []string{"S1", "S2", "S3"}},
		{name: "all by -name", ordering: []core.DBOrdering{{Field: "name"}}, want: []string{"S3", "S2", "S1"}},
		{
			name: "branch", filter: student.QueryFilter{Branch: " cse "},
			ordering: []core.DBOrdering{{Field: "student_id", Ascending: true}}, want: []string{"S1", "S3"},
		},
		{name: "search name", filter: student.QueryFilter{Search: "meera"}, want: []string{"S2"}},
		{name: "search pin", filter: student.QueryFilter{Search: "pin-s3"}, want: []string{"S3"}},
		{name: "search (unknown)", filter: student.QueryFilter{Search: "lol"}, want: []string{}},
		{name: "branch & search (empty)", filter: student.QueryFilter{Branch: "ECE", Search: "asha"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			students, err := app.Students.Query(ctx, tt.filter, tt.ordering...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, studentIDs(students))
		})
	}

	t.Run("QueryByBranch", func(t *testing.T) {
		students, err := app.Students.QueryByBranch(ctx, "cse")
		require.NoError(t, err)
		assert.Equal(t, []string{"S1", "S3"}, studentIDs(students))
	})
}

func TestUniquenessError(t *testing.T) {
	err := student.UniquenessError(student.ErrPinExists)
	require.True(t, core.IsValidation(err))
	vErr := err.(*core.ValidationError)
	assert.Equal(t, []core.FieldError{{Field: "pin", Error: student.ErrPinExists.Error()}}, vErr.Fields)

	assert.Equal(t, assert.AnError, student.UniquenessError(assert.AnError))
}
