package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	echoapi "github.com/trezcool/feeportal/apps/api/echo"
	"github.com/trezcool/feeportal/core/student"
	"github.com/trezcool/feeportal/testutil"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// newApp serves the API on a fresh in-memory App, with the Tuition and Hostel fees in the catalog.
func newApp(t *testing.T, failFor ...string) (*echoapi.Server, *testutil.App) {
	t.Helper()
	app := testutil.NewApp(t, failFor...)
	app.AddCatalogEntry(t, "Tuition", 50000)
	app.AddCatalogEntry(t, "Hostel", 20000)

	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           app.Conf,
		Logger:         app.Logger,
		StudentSvc:     app.Students,
		LedgerSvc:      app.Ledger,
		Scheduler:      app.Scheduler,
		DisableReqLogs: true,
	})
	return srv, app
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func serve(srv *echoapi.Server, method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	srv.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T, app *testutil.App) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.GetAdminClaims("admin-1", "Bursar", app.Conf), testutil.SecretKey)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}
	return token
}

func studentToken(t *testing.T, app *testutil.App, s student.Student) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.GetStudentClaims(s, app.Conf), testutil.SecretKey)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, srv *echoapi.Server, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
