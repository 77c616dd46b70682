package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/convservice"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/samples"
	"github.com/starford/ansuz/internal/store"
)

// testEnv sets up a temp store, sample corpus, service, and router.
// authToken == "" means disabled auth mode.
func testEnv(t *testing.T, authToken string) (*convservice.Service, http.Handler) {
	svc, router, _ := testEnvWithCorpus(t, authToken, 0)
	return svc, router
}

func testEnvWithCorpus(t *testing.T, authToken string, ratePerMinute int) (*convservice.Service, http.Handler, string) {
	t.Helper()

	corpusDir := t.TempDir()
	corpus, err := samples.NewFS(corpusDir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	dbFile, err := os.CreateTemp("", "ansuz-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := convservice.NewService(db)
	enabled := authToken != ""
	router := NewRouter(svc, corpus, enabled, authToken, ratePerMinute, nil)
	return svc, router, corpusDir
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResults(t *testing.T, w *httptest.ResponseRecorder, target any) {
	t.Helper()
	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, w.Body.String())
	}
	if err := json.Unmarshal(envelope.Results, target); err != nil {
		t.Fatalf("decode results: %v (body: %s)", err, w.Body.String())
	}
}

func createConversation(t *testing.T, router http.Handler, name string) models.Conversation {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/conversations", CreateConversationRequest{Name: name})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var c models.Conversation
	decodeResults(t, w, &c)
	return c
}

func TestCreateAndGetConversation(t *testing.T) {
	_, router := testEnv(t, "")

	c := createConversation(t, router, "support thread")
	if c.ID == uuid.Nil {
		t.Fatal("missing conversation id")
	}

	w := doJSON(t, router, http.MethodGet, "/conversations/"+c.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var detail ConversationDetail
	decodeResults(t, w, &detail)
	if detail.Name != "support thread" {
		t.Errorf("name = %q", detail.Name)
	}
	if len(detail.Messages) != 0 {
		t.Errorf("messages = %d, want 0", len(detail.Messages))
	}
}

func TestCreateConversationEmptyBody(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/conversations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (name is optional)", w.Code)
	}
}

func TestListConversationsTotalEntries(t *testing.T) {
	_, router := testEnv(t, "")
	a := createConversation(t, router, "a")
	createConversation(t, router, "b")
	createConversation(t, router, "c")

	w := doJSON(t, router, http.MethodGet, "/conversations?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var envelope struct {
		Results      []models.Conversation `json:"results"`
		TotalEntries int                   `json:"total_entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.TotalEntries != 3 {
		t.Errorf("total_entries = %d, want 3", envelope.TotalEntries)
	}
	if len(envelope.Results) != 2 {
		t.Errorf("results = %d, want 2", len(envelope.Results))
	}

	// Filter by id.
	w = doJSON(t, router, http.MethodGet, "/conversations?ids="+a.ID.String(), nil)
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.TotalEntries != 1 || envelope.Results[0].ID != a.ID {
		t.Errorf("filtered list = %+v", envelope)
	}

	// Invalid id filter is a 400.
	w = doJSON(t, router, http.MethodGet, "/conversations?ids=not-a-uuid", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid ids status = %d, want 400", w.Code)
	}
}

func TestUpdateConversation(t *testing.T) {
	_, router := testEnv(t, "")
	c := createConversation(t, router, "old")

	w := doJSON(t, router, http.MethodPost, "/conversations/"+c.ID.String(), UpdateConversationRequest{Name: "new"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Conversation
	decodeResults(t, w, &got)
	if got.Name != "new" {
		t.Errorf("name = %q", got.Name)
	}

	// Missing name is rejected.
	w = doJSON(t, router, http.MethodPost, "/conversations/"+c.ID.String(), UpdateConversationRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty name status = %d, want 400", w.Code)
	}
}

func TestDeleteConversation(t *testing.T) {
	_, router := testEnv(t, "")
	c := createConversation(t, router, "")

	w := doJSON(t, router, http.MethodDelete, "/conversations/"+c.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	var res boolResult
	decodeResults(t, w, &res)
	if !res.Success {
		t.Error("expected success=true")
	}

	w = doJSON(t, router, http.MethodGet, "/conversations/"+c.ID.String(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/conversations/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("delete unknown = %d, want 404", w.Code)
	}
}

func TestAddMessageValidation(t *testing.T) {
	_, router := testEnv(t, "")
	c := createConversation(t, router, "")
	base := "/conversations/" + c.ID.String() + "/messages"

	// Valid message.
	w := doJSON(t, router, http.MethodPost, base, AddMessageRequest{Role: "user", Content: "Hello, world!"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body = %s", w.Code, w.Body.String())
	}
	var m models.Message
	decodeResults(t, w, &m)
	if m.Role != models.RoleUser || m.ConversationID != c.ID {
		t.Errorf("message = %+v", m)
	}

	// Empty content.
	w = doJSON(t, router, http.MethodPost, base, AddMessageRequest{Role: "user", Content: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty content = %d, want 400", w.Code)
	}

	// Bad role.
	w = doJSON(t, router, http.MethodPost, base, AddMessageRequest{Role: "moderator", Content: "hi"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad role = %d, want 400", w.Code)
	}

	// Unknown conversation.
	w = doJSON(t, router, http.MethodPost, "/conversations/"+uuid.NewString()+"/messages",
		AddMessageRequest{Role: "user", Content: "hi"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown conversation = %d, want 404", w.Code)
	}
}

func TestThreadedMessagesRoundTrip(t *testing.T) {
	_, router := testEnv(t, "")
	c := createConversation(t, router, "")
	base := "/conversations/" + c.ID.String() + "/messages"

	w := doJSON(t, router, http.MethodPost, base, AddMessageRequest{Role: "system", Content: "be helpful"})
	var root models.Message
	decodeResults(t, w, &root)

	w = doJSON(t, router, http.MethodPost, base, AddMessageRequest{Role: "user", Content: "question", ParentID: &root.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("child status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/conversations/"+c.ID.String(), nil)
	var detail ConversationDetail
	decodeResults(t, w, &detail)
	if len(detail.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(detail.Messages))
	}
	if detail.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", detail.MessageCount)
	}
	child := detail.Messages[1]
	if child.ParentID == nil || *child.ParentID != root.ID {
		t.Errorf("child parent = %v, want %s", child.ParentID, root.ID)
	}
}

func TestUpdateMessage(t *testing.T) {
	_, router := testEnv(t, "")
	c := createConversation(t, router, "")
	base := "/conversations/" + c.ID.String() + "/messages"

	w := doJSON(t, router, http.MethodPost, base, AddMessageRequest{Role: "user", Content: "draft", Metadata: map[string]string{"a": "1"}})
	var m models.Message
	decodeResults(t, w, &m)

	content := "final"
	w = doJSON(t, router, http.MethodPost, base+"/"+m.ID.String(), UpdateMessageRequest{Content: &content, Metadata: map[string]string{"b": "2"}})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Message
	decodeResults(t, w, &got)
	if got.Content != "final" || got.Metadata["a"] != "1" || got.Metadata["b"] != "2" {
		t.Errorf("got %+v", got)
	}

	// Unknown message.
	w = doJSON(t, router, http.MethodPost, base+"/"+uuid.NewString(), UpdateMessageRequest{Content: &content})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown message = %d, want 404", w.Code)
	}
}

func TestExportConversationCSV(t *testing.T) {
	_, router := testEnv(t, "")
	c := createConversation(t, router, "")
	base := "/conversations/" + c.ID.String() + "/messages"
	doJSON(t, router, http.MethodPost, base, AddMessageRequest{Role: "user", Content: "exported line"})

	w := doJSON(t, router, http.MethodGet, "/conversations/"+c.ID.String()+"/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("exported line")) {
		t.Errorf("body missing record: %s", w.Body.String())
	}
}

func TestSearchMessages(t *testing.T) {
	_, router := testEnv(t, "")
	c := createConversation(t, router, "")
	base := "/conversations/" + c.ID.String() + "/messages"
	doJSON(t, router, http.MethodPost, base, AddMessageRequest{Role: "user", Content: "the organon treatises"})
	doJSON(t, router, http.MethodPost, base, AddMessageRequest{Role: "assistant", Content: "something else"})

	w := doJSON(t, router, http.MethodGet, "/search?q=organon", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var envelope struct {
		Results      []store.SearchHit `json:"results"`
		TotalEntries int               `json:"total_entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.TotalEntries != 1 || len(envelope.Results) != 1 {
		t.Fatalf("envelope = %+v", envelope)
	}
	if envelope.Results[0].ConversationID != c.ID {
		t.Errorf("hit = %+v", envelope.Results[0])
	}

	// Missing query.
	w = doJSON(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}
}

func TestSamplesEndpoints(t *testing.T) {
	_, router, corpusDir := testEnvWithCorpus(t, "", 0)
	if err := os.WriteFile(filepath.Join(corpusDir, "a5.txt"), []byte("Organon\n\nProse.[26]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodGet, "/samples", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list samples status = %d", w.Code)
	}
	var envelope struct {
		Results      []models.SampleMeta `json:"results"`
		TotalEntries int                 `json:"total_entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.TotalEntries != 1 || envelope.Results[0].Path != "a5.txt" {
		t.Fatalf("envelope = %+v", envelope)
	}

	w = doJSON(t, router, http.MethodGet, "/samples/a5.txt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get sample status = %d", w.Code)
	}
	var detail samples.Detail
	decodeResults(t, w, &detail)
	if detail.Stats == nil || detail.Stats.Heading != "Organon" {
		t.Errorf("detail = %+v", detail)
	}

	w = doJSON(t, router, http.MethodGet, "/samples/missing.txt", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing sample = %d, want 404", w.Code)
	}
}

func TestAuthTokenMode(t *testing.T) {
	_, router := testEnv(t, "secret")

	// No token.
	w := doJSON(t, router, http.MethodGet, "/conversations", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	// Wrong token.
	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	// Correct token.
	req = httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	_, router, _ := testEnvWithCorpus(t, "", 3)

	var last int
	for i := 0; i < 5; i++ {
		w := doJSON(t, router, http.MethodGet, "/conversations", nil)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want 429", last)
	}
}
