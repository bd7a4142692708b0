package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

var passIDRE = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	jwtSecret = []byte("test-secret")
	_ = os.Setenv("UPLOAD_BASE", t.TempDir())
	initDB()
	r := gin.Default()
	setupRoutes(r)
	return r
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewBuffer(b)
}

type profileEnvelope struct {
	Profile struct {
		ID          uint    `json:"id"`
		FormStep    int     `json:"form_step"`
		IsSubmitted bool    `json:"is_submitted"`
		PassID      *string `json:"pass_id"`
		Name        string  `json:"name"`
		District    string  `json:"district"`
		UpdatedAt   time.Time `json:"updated_at"`
	} `json:"profile"`
	State string `json:"state"`
}

func decodeProfile(t *testing.T, rec *httptest.ResponseRecorder) profileEnvelope {
	t.Helper()
	var env profileEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode profile response: %v body=%s", err, rec.Body.String())
	}
	return env
}

func loginAs(t *testing.T, r http.Handler, username, password string) string {
	t.Helper()
	resp := performRequest(r, http.MethodPost, "/login", jsonBody(t, map[string]string{"username": username, "password": password}), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login %s failed status=%d body=%s", username, resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}
	return token
}

func step1Body(t *testing.T) *bytes.Buffer {
	return jsonBody(t, map[string]string{
		"email":         "a@x.com",
		"name":          "Asha Rao",
		"contact":       "9876543210",
		"gender":        "female",
		"date_of_birth": "2000-01-01",
	})
}

func TestRegistrationFlow(t *testing.T) {
	r := setupTestServer(t)

	username := fmt.Sprintf("asha_%d", time.Now().UnixNano())

	// 1. Register and login; login creates the empty profile
	resp := performRequest(r, http.MethodPost, "/register", jsonBody(t, map[string]string{"username": username, "password": "pass123"}), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	token := loginAs(t, r, username, "pass123")

	resp = performRequest(r, http.MethodGet, "/profile", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("get profile failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	env := decodeProfile(t, resp)
	if env.Profile.FormStep != 0 || env.Profile.IsSubmitted || env.State != "step1" {
		t.Fatalf("fresh profile not empty: %+v", env)
	}

	// 2. Invalid step 1 persists nothing
	bad := jsonBody(t, map[string]string{"email": "a@x.com", "name": "Asha Rao", "contact": "12345", "gender": "female", "date_of_birth": "2000-01-01"})
	resp = performRequest(r, http.MethodPost, "/profile/step1", bad, token, "application/json")
	if resp.Code != 400 {
		t.Fatalf("short contact accepted: status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/profile", nil, token, "")
	if env = decodeProfile(t, resp); env.Profile.FormStep != 0 {
		t.Fatalf("failed validation changed form_step: %+v", env.Profile)
	}

	// 3. Submitting before step 2 is rejected
	resp = performRequest(r, http.MethodPost, "/profile/submit", jsonBody(t, map[string]bool{"confirm": true}), token, "application/json")
	if resp.Code != 409 {
		t.Fatalf("expected 409 submitting at step 0, got %d body=%s", resp.Code, resp.Body.String())
	}

	// 4. Valid step 1
	resp = performRequest(r, http.MethodPost, "/profile/step1", step1Body(t), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("step1 failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	env = decodeProfile(t, resp)
	if env.Profile.FormStep != 1 || env.Profile.Name != "Asha Rao" {
		t.Fatalf("step1 not persisted: %+v", env.Profile)
	}
	firstSave := env.Profile.UpdatedAt

	// 5. Idempotent re-save: same data, form_step stays 1, updated_at advances
	time.Sleep(10 * time.Millisecond)
	resp = performRequest(r, http.MethodPost, "/profile/step1", step1Body(t), token, "application/json")
	env = decodeProfile(t, resp)
	if env.Profile.FormStep != 1 {
		t.Fatalf("re-save changed form_step: %+v", env.Profile)
	}
	if !env.Profile.UpdatedAt.After(firstSave) {
		t.Fatalf("updated_at did not advance: %v -> %v", firstSave, env.Profile.UpdatedAt)
	}

	// 6. Valid step 2
	resp = performRequest(r, http.MethodPost, "/profile/step2", jsonBody(t, map[string]any{
		"age": 24, "district": "Pune", "category": "OBC", "highest_qualification": "B.Sc.",
	}), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("step2 failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	env = decodeProfile(t, resp)
	if env.Profile.FormStep != 2 || env.State != "review" {
		t.Fatalf("step2 not persisted: %+v state=%s", env.Profile, env.State)
	}

	// 7. Submission requires confirmation
	resp = performRequest(r, http.MethodPost, "/profile/submit", jsonBody(t, map[string]bool{"confirm": false}), token, "application/json")
	if resp.Code != 409 {
		t.Fatalf("expected 409 without confirmation, got %d", resp.Code)
	}

	// 8. Confirmed submission issues the pass id
	resp = performRequest(r, http.MethodPost, "/profile/submit", jsonBody(t, map[string]bool{"confirm": true}), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("submit failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	env = decodeProfile(t, resp)
	if !env.Profile.IsSubmitted || env.Profile.PassID == nil || !passIDRE.MatchString(*env.Profile.PassID) {
		t.Fatalf("bad submission result: %+v", env.Profile)
	}
	issued := *env.Profile.PassID

	// 9. Post-submission immutability: edits are rejected, pass id stable
	resp = performRequest(r, http.MethodPost, "/profile/step1", step1Body(t), token, "application/json")
	if resp.Code != 409 {
		t.Fatalf("expected 409 editing a submitted profile, got %d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/profile/submit", jsonBody(t, map[string]bool{"confirm": true}), token, "application/json")
	if resp.Code != 409 {
		t.Fatalf("expected 409 re-submitting, got %d", resp.Code)
	}
	resp = performRequest(r, http.MethodGet, "/profile", nil, token, "")
	env = decodeProfile(t, resp)
	if env.Profile.PassID == nil || *env.Profile.PassID != issued {
		t.Fatalf("pass id changed after submission: %+v", env.Profile)
	}

	// 10. Pass download
	resp = performRequest(r, http.MethodGet, "/pass", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("pass download failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %s", got)
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("response is not a PDF")
	}

	// 11. Access policy: non-admin cannot browse, admin can
	resp = performRequest(r, http.MethodGet, "/admin/profiles", nil, token, "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin browse, got %d", resp.Code)
	}
	adminToken := loginAs(t, r, "admin", "admin123")
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/admin/profiles/%d", env.Profile.ID), nil, adminToken, "")
	if resp.Code != 200 {
		t.Fatalf("admin read failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/admin/export", nil, adminToken, "")
	if resp.Code != 200 {
		t.Fatalf("admin export failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte(issued)) {
		t.Fatalf("export missing issued pass id %s", issued)
	}

	// 12. Unauthorized access to a protected endpoint
	unauth := performRequest(r, http.MethodGet, "/profile", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", unauth.Code)
	}
}

func TestPhotoUpload(t *testing.T) {
	r := setupTestServer(t)

	username := fmt.Sprintf("ravi_%d", time.Now().UnixNano())
	resp := performRequest(r, http.MethodPost, "/register", jsonBody(t, map[string]string{"username": username, "password": "pass123"}), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	token := loginAs(t, r, username, "pass123")

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="photo.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	w, _ := mw.CreatePart(hdr)
	_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10})
	_ = mw.Close()

	resp = performRequest(r, http.MethodPost, "/profile/photo", buf, token, mw.FormDataContentType())
	if resp.Code != 200 {
		t.Fatalf("photo upload failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	ref, _ := out["photo_reference"].(string)
	if ref == "" {
		t.Fatalf("no photo_reference in response: %s", resp.Body.String())
	}

	// non-image uploads are rejected
	buf = &bytes.Buffer{}
	mw = multipart.NewWriter(buf)
	w, _ = mw.CreateFormFile("file", "notes.txt")
	_, _ = w.Write([]byte("plain text"))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/profile/photo", buf, token, mw.FormDataContentType())
	if resp.Code != 400 {
		t.Fatalf("expected 400 for non-image upload, got %d body=%s", resp.Code, resp.Body.String())
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	initDB()
}
