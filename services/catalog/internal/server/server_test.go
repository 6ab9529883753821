package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"bookbazaar/internal/servicetoken"
	"bookbazaar/pkg/domain"
	"bookbazaar/pkg/storage"
	"bookbazaar/pkg/store"
	"bookbazaar/services/catalog/internal/accountclient"
	"bookbazaar/services/catalog/internal/app"
)

const testSecret = "test-internal-secret"

func newAccountStub(t *testing.T, users map[string]domain.User) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/me" {
			http.NotFound(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		user, ok := users[token]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user": user})
	}))
}

type testEnv struct {
	server *Server
	store  *store.MemoryStore
	app    *app.App
}

func newTestServer(t *testing.T, users map[string]domain.User) *testEnv {
	t.Helper()
	accountStub := newAccountStub(t, users)
	t.Cleanup(accountStub.Close)

	objects, err := storage.NewLocalStore(t.TempDir(), "http://files.test")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	mem := store.NewMemoryStore()
	catalogApp, err := app.New(app.Config{Store: mem, Objects: objects})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	srv, err := New(Config{
		App:                 catalogApp,
		Account:             accountclient.NewClient(accountStub.URL),
		InternalTokenSecret: testSecret,
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return &testEnv{server: srv, store: mem, app: catalogApp}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func bookFormRequest(t *testing.T, method, target, token string, fields map[string]string, coverName string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if coverName != "" {
		fw, err := mw.CreateFormFile("cover_image", coverName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.Copy(fw, bytes.NewReader([]byte("fake image bytes"))); err != nil {
			t.Fatalf("copy cover: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func testUsers() map[string]domain.User {
	return map[string]domain.User{
		"admin-token":  {ID: "u-admin", Name: "Ada", Email: "ada@example.com", Role: domain.RoleAdmin},
		"seller-token": {ID: "u-seller", Name: "Sam", Email: "sam@example.com", Role: domain.RoleSeller},
		"buyer-token":  {ID: "u-buyer", Name: "Bea", Email: "bea@example.com", Role: domain.RoleCustomer},
	}
}

func createBookViaAPI(t *testing.T, env *testEnv, token string) string {
	t.Helper()
	req := bookFormRequest(t, http.MethodPost, "/books", token, map[string]string{
		"name":          "Go in Practice",
		"author":        "M. Example",
		"description":   "patterns and recipes",
		"price":         "29.90",
		"stock":         "12",
		"category_name": "Programming",
	}, "cover.png")
	rec := env.do(t, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	book, ok := body["book"].(map[string]any)
	if !ok {
		t.Fatalf("missing book in response: %v", body)
	}
	id, _ := book["id"].(string)
	if id == "" {
		t.Fatalf("missing book id: %v", book)
	}
	return id
}

func TestHealthz(t *testing.T) {
	env := newTestServer(t, testUsers())
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateBookRequiresSeller(t *testing.T) {
	env := newTestServer(t, testUsers())

	req := bookFormRequest(t, http.MethodPost, "/books", "buyer-token", map[string]string{
		"name": "x", "author": "y", "category_name": "z",
	}, "")
	if rec := env.do(t, req); rec.Code != http.StatusForbidden {
		t.Fatalf("customer create status = %d", rec.Code)
	}

	req = bookFormRequest(t, http.MethodPost, "/books", "", map[string]string{"name": "x"}, "")
	req.Header.Del("Authorization")
	if rec := env.do(t, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create status = %d", rec.Code)
	}
}

func TestCreateBookValidation(t *testing.T) {
	env := newTestServer(t, testUsers())

	req := bookFormRequest(t, http.MethodPost, "/books", "seller-token", map[string]string{
		"author": "y", "category_name": "z",
	}, "")
	rec := env.do(t, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing name status = %d", rec.Code)
	}
	if msg := decodeBody(t, rec)["message"]; msg != "name is required" {
		t.Fatalf("message = %v", msg)
	}

	req = bookFormRequest(t, http.MethodPost, "/books", "seller-token", map[string]string{
		"name": "x", "author": "y", "category_name": "z", "price": "cheap",
	}, "")
	if rec := env.do(t, req); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad price status = %d", rec.Code)
	}
}

func TestBookLifecycleOverHTTP(t *testing.T) {
	env := newTestServer(t, testUsers())
	id := createBookViaAPI(t, env, "seller-token")

	// pending books are invisible on the public detail route
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/books/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("pending detail status = %d", rec.Code)
	}

	// seller cannot approve
	req := httptest.NewRequest(http.MethodPost, "/books/"+id+"/approve", nil)
	req.Header.Set("Authorization", "Bearer seller-token")
	if rec := env.do(t, req); rec.Code != http.StatusForbidden {
		t.Fatalf("seller approve status = %d", rec.Code)
	}

	// admin approves
	req = httptest.NewRequest(http.MethodPost, "/books/"+id+"/approve", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	if rec := env.do(t, req); rec.Code != http.StatusOK {
		t.Fatalf("admin approve status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/books/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("approved detail status = %d", rec.Code)
	}
	book := decodeBody(t, rec)["book"].(map[string]any)
	if book["status"] != string(domain.StatusApproved) {
		t.Fatalf("status = %v", book["status"])
	}
	coverURL, _ := book["coverImageUrl"].(string)
	if !strings.HasPrefix(coverURL, "http://files.test/") {
		t.Fatalf("coverImageUrl = %q", coverURL)
	}
}

func TestRejectRequiresNote(t *testing.T) {
	env := newTestServer(t, testUsers())
	id := createBookViaAPI(t, env, "seller-token")

	body := bytes.NewBufferString(`{"reject_note": ""}`)
	req := httptest.NewRequest(http.MethodPost, "/books/"+id+"/reject", body)
	req.Header.Set("Authorization", "Bearer admin-token")
	req.Header.Set("Content-Type", "application/json")
	if rec := env.do(t, req); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty note status = %d", rec.Code)
	}

	body = bytes.NewBufferString(`{"reject_note": "cover is unreadable"}`)
	req = httptest.NewRequest(http.MethodPost, "/books/"+id+"/reject", body)
	req.Header.Set("Authorization", "Bearer admin-token")
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reject status = %d, body %s", rec.Code, rec.Body.String())
	}
	book := decodeBody(t, rec)["book"].(map[string]any)
	if book["status"] != string(domain.StatusDisapproved) {
		t.Fatalf("status = %v", book["status"])
	}
	if book["rejectNote"] != "cover is unreadable" {
		t.Fatalf("rejectNote = %v", book["rejectNote"])
	}
}

func TestUpdateResetsStatus(t *testing.T) {
	env := newTestServer(t, testUsers())
	id := createBookViaAPI(t, env, "seller-token")

	req := httptest.NewRequest(http.MethodPost, "/books/"+id+"/approve", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	if rec := env.do(t, req); rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d", rec.Code)
	}

	req = bookFormRequest(t, http.MethodPatch, "/books/"+id, "seller-token", map[string]string{
		"price": "19.90",
	}, "")
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	book := decodeBody(t, rec)["book"].(map[string]any)
	if book["status"] != string(domain.StatusPending) {
		t.Fatalf("status after update = %v", book["status"])
	}
	if book["price"] != 19.90 {
		t.Fatalf("price = %v", book["price"])
	}
	if book["name"] != "Go in Practice" {
		t.Fatalf("untouched name = %v", book["name"])
	}
}

func TestUpdateForeignBookForbidden(t *testing.T) {
	users := testUsers()
	users["other-seller-token"] = domain.User{ID: "u-other", Name: "Oli", Email: "oli@example.com", Role: domain.RoleSeller}
	env := newTestServer(t, users)
	id := createBookViaAPI(t, env, "seller-token")

	req := bookFormRequest(t, http.MethodPatch, "/books/"+id, "other-seller-token", map[string]string{
		"price": "1.00",
	}, "")
	if rec := env.do(t, req); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign update status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/books/"+id, nil)
	req.Header.Set("Authorization", "Bearer other-seller-token")
	if rec := env.do(t, req); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete status = %d", rec.Code)
	}
}

func TestListRoutes(t *testing.T) {
	env := newTestServer(t, testUsers())
	createBookViaAPI(t, env, "seller-token")

	// admin list sees the pending book
	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list status = %d", rec.Code)
	}
	if data := decodeBody(t, rec)["data"].([]any); len(data) != 1 {
		t.Fatalf("admin list size = %d", len(data))
	}

	// seller is denied the full list
	req = httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("Authorization", "Bearer seller-token")
	if rec := env.do(t, req); rec.Code != http.StatusForbidden {
		t.Fatalf("seller list status = %d", rec.Code)
	}

	// public list hides pending
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/books/public", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("public list status = %d", rec.Code)
	}
	if books, ok := decodeBody(t, rec)["books"].([]any); ok && len(books) != 0 {
		t.Fatalf("public list size = %d", len(books))
	}

	// seller sees own submissions
	req = httptest.NewRequest(http.MethodGet, "/books/mine", nil)
	req.Header.Set("Authorization", "Bearer seller-token")
	rec = env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("mine status = %d", rec.Code)
	}
	if books := decodeBody(t, rec)["books"].([]any); len(books) != 1 {
		t.Fatalf("mine size = %d", len(books))
	}
}

func TestSearchRequiresName(t *testing.T) {
	env := newTestServer(t, testUsers())
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/books/search", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("search without name status = %d", rec.Code)
	}

	id := createBookViaAPI(t, env, "seller-token")
	req := httptest.NewRequest(http.MethodPost, "/books/"+id+"/approve", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	if rec := env.do(t, req); rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d", rec.Code)
	}

	target := "/books/search?name=" + url.QueryEscape("Go")
	rec = env.do(t, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	if books := decodeBody(t, rec)["books"].([]any); len(books) != 1 {
		t.Fatalf("search size = %d", len(books))
	}
}

func TestInternalPurgeRequiresServiceToken(t *testing.T) {
	env := newTestServer(t, testUsers())
	createBookViaAPI(t, env, "seller-token")

	req := httptest.NewRequest(http.MethodDelete, "/internal/sellers/u-seller/books", nil)
	if rec := env.do(t, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/internal/sellers/u-seller/books", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	if rec := env.do(t, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}

	signer, err := servicetoken.NewSigner(testSecret, "account-service", "catalog", time.Minute)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	token, err := signer.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	req = httptest.NewRequest(http.MethodDelete, "/internal/sellers/u-seller/books", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("purge status = %d, body %s", rec.Code, rec.Body.String())
	}
	if removed := decodeBody(t, rec)["removed"]; removed != float64(1) {
		t.Fatalf("removed = %v", removed)
	}

	// the seller's list is now empty
	mineReq := httptest.NewRequest(http.MethodGet, "/books/mine", nil)
	mineReq.Header.Set("Authorization", "Bearer seller-token")
	mineRec := env.do(t, mineReq)
	if books := decodeBody(t, mineRec)["books"].([]any); len(books) != 0 {
		t.Fatalf("mine after purge = %d", len(books))
	}
}

func TestUnknownBookRoutes(t *testing.T) {
	env := newTestServer(t, testUsers())

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/books/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/books/nope/approve", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	if rec := env.do(t, req); rec.Code != http.StatusNotFound {
		t.Fatalf("approve unknown status = %d", rec.Code)
	}
}

func TestRequestIDHeaderPropagates(t *testing.T) {
	env := newTestServer(t, testUsers())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := env.do(t, req)
	if got := rec.Header().Get("X-Request-Id"); got == "" {
		t.Fatalf("missing X-Request-Id header")
	}
}

