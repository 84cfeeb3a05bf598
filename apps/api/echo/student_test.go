package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeportal/core/student"
	"github.com/trezcool/feeportal/testutil"
)

func Test_home(t *testing.T) {
	srv, _ := newApp(t)
	rec := serve(srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Fee Portal API!", rec.Body.String())
}

func Test_auth(t *testing.T) {
	srv, app := newApp(t)
	asha := app.Enroll(t, "S1", "Asha Rao", "cse", "9876543210")
	app.Enroll(t, "S2", "Ravi Kumar", "cse", "9876543211")
	ashaToken := studentToken(t, app, asha)

	tests := []httpTest{
		{name: "token required", path: "/v1/students/S1", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "bad signature", path: "/v1/students/S1", token: ashaToken + "x", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{name: "student on self", path: "/v1/students/S1", token: ashaToken},
		{name: "student on another student", path: "/v1/students/S2", token: ashaToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "student on admin route", path: "/v1/students", token: ashaToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "admin on any student", path: "/v1/students/S2", token: adminToken(t, app)},
		{name: "payment methods", path: "/v1/payment-methods", token: ashaToken, wantData: marchallObj(t, []string{
			"Credit Card", "Debit Card", "UPI", "PhonePe", "GooglePay", "Paytm", "Amazon Pay", "PayPal", "Super Money",
		})},
	}
	runHTTPTests(t, srv, tests)
}

func Test_studentApi_enroll(t *testing.T) {
	srv, app := newApp(t)
	token := adminToken(t, app)

	valid := student.NewStudent{
		StudentID: "S1",
		Pin:       "PIN-1",
		Name:      "Asha Rao",
		Branch:    "cse",
		Mobile:    "9876543210",
		Password:  testutil.Password,
	}
	withPin := func(pin string) student.NewStudent {
		ns := valid
		ns.StudentID = "S2"
		ns.Pin = pin
		return ns
	}

	tests := []httpTest{
		{
			name: "required fields", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"student_id": "this field is required",
				"pin":        "this field is required",
				"name":       "this field is required",
				"branch":     "this field is required",
				"mobile":     "this field is required",
				"password":   "this field is required",
			}),
		},
		{name: "enrolled", body: marchallObj(t, valid), wantCode: http.StatusCreated},
		{
			name: "student id taken", body: marchallObj(t, valid), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_id": student.ErrStudentIDExists.Error()}),
		},
		{
			name: "pin taken", body: marchallObj(t, withPin("PIN-1")), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"pin": student.ErrPinExists.Error()}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/students"
		tests[i].token = token
	}
	runHTTPTests(t, srv, tests)

	s, err := app.Students.GetByStudentID(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "CSE", s.Branch)
	assert.Equal(t, student.DefaultCourse, s.Course)

	l, err := app.Ledger.Ledger(context.Background(), "S1")
	require.NoError(t, err)
	assert.Len(t, l[testutil.Year], 2)
	assert.Len(t, l[testutil.OtherYear], 2)
}

func Test_studentApi_query(t *testing.T) {
	srv, app := newApp(t)
	token := adminToken(t, app)
	s1 := app.Enroll(t, "S1", "Asha Rao", "cse", "9876543210")
	s2 := app.Enroll(t, "S2", "Ravi Kumar", "cse", "9876543211")
	s3 := app.Enroll(t, "S3", "Meera Nair", "ece", "9876543212")

	tests := []httpTest{
		{name: "by student_id", path: "/v1/students?ordering=student_id", wantData: marchallObj(t, []student.Student{s1, s2, s3})},
		{name: "by -name", path: "/v1/students?ordering=-name", wantData: marchallObj(t, []student.Student{s2, s3, s1})},
		{name: "branch", path: "/v1/students?branch=ece", wantData: marchallObj(t, []student.Student{s3})},
		{name: "search", path: "/v1/students?search=ravi", wantData: marchallObj(t, []student.Student{s2})},
		{name: "search (unknown)", path: "/v1/students?search=lol", wantData: []byte(`[]`)},
		{name: "retrieve", path: "/v1/students/S3", wantData: marchallObj(t, s3)},
		{
			name: "retrieve (unknown)", path: "/v1/students/S9", wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "student not found"}),
		},
	}
	for i := range tests {
		tests[i].token = token
	}
	runHTTPTests(t, srv, tests)

	t.Run("password is never sent", func(t *testing.T) {
		rec := serve(srv, http.MethodGet, "/v1/students/S1", token)
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.NotContains(t, got, "password")
		assert.NotContains(t, got, "PasswordHash")
	})
}
