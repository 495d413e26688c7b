package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/watchlogapp/watchlog-server/internal/auth"
	"github.com/watchlogapp/watchlog-server/internal/entries"
	"github.com/watchlogapp/watchlog-server/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&entries.MediaEntry{}, &entries.Tag{}, &entries.EntryTag{}, &users.Account{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	entriesService, err := entries.NewService(entries.ServiceConfig{
		Database:   db,
		IDProvider: entries.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct entries service: %v", err)
	}

	accountsService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: entries.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct accounts service: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "watchlog-auth",
		Audience:      "watchlog-api",
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Accounts:     accountsService,
		TokenManager: issuer,
		Entries:      entriesService,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return handler
}

func performRequest(handler http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func registerAndLogin(t *testing.T, handler http.Handler, email string) string {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":"correct horse","display_name":"Viewer"}`, email)
	recorder := performRequest(handler, http.MethodPost, "/auth/register", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("registration failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var response authResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode auth response: %v", err)
	}
	if response.AccessToken == "" || response.TokenType != "Bearer" {
		t.Fatalf("unexpected auth response: %+v", response)
	}
	return response.AccessToken
}

func TestEntriesRequireBearerToken(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performRequest(handler, http.MethodGet, "/entries", "", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", recorder.Code)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	handler := newTestHandler(t)
	registerAndLogin(t, handler, "viewer@example.com")

	recorder := performRequest(handler, http.MethodPost, "/auth/login", "", `{"email":"viewer@example.com","password":"wrong horse"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestRegisterRejectsDuplicateEmailOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	registerAndLogin(t, handler, "viewer@example.com")

	recorder := performRequest(handler, http.MethodPost, "/auth/register", "", `{"email":"viewer@example.com","password":"another pass"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestCreateEntryRejectsUnknownEnum(t *testing.T) {
	handler := newTestHandler(t)
	token := registerAndLogin(t, handler, "viewer@example.com")

	body := `{"title":"The Expanse","type":"podcast","status":"planning"}`
	recorder := performRequest(handler, http.MethodPost, "/entries", token, body)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["error"] != "validation" {
		t.Fatalf("expected validation error, got %v", payload["error"])
	}
	if payload["field"] != "type" {
		t.Fatalf("expected offending field named, got %v", payload["field"])
	}
	allowed, ok := payload["allowed"].([]any)
	if !ok || len(allowed) == 0 {
		t.Fatalf("expected allowed values listed, got %v", payload["allowed"])
	}
}

func TestListEntriesRejectsUnknownSortToken(t *testing.T) {
	handler := newTestHandler(t)
	token := registerAndLogin(t, handler, "viewer@example.com")

	recorder := performRequest(handler, http.MethodGet, "/entries?sort=popularity", token, "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["field"] != "sort" {
		t.Fatalf("expected sort named as the offending field, got %v", payload["field"])
	}
}

func TestEntryLifecycleOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := registerAndLogin(t, handler, "viewer@example.com")

	createBody := `{"title":"The Expanse","type":"series","sub_type":"live_action","status":"planning","rating":8.5,"tags":["SciFi","Drama"]}`
	recorder := performRequest(handler, http.MethodPost, "/entries", token, createBody)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var created entries.EntryView
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode created entry: %v", err)
	}
	if created.ID == "" || created.Version != 1 {
		t.Fatalf("unexpected created entry: %+v", created)
	}
	if len(created.Tags) != 2 || created.Tags[0] != "drama" || created.Tags[1] != "scifi" {
		t.Fatalf("expected lowercased sorted tags, got %v", created.Tags)
	}

	recorder = performRequest(handler, http.MethodGet, "/entries?tag=scifi", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var listed listResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if listed.Total != 1 || len(listed.Items) != 1 {
		t.Fatalf("expected one listed entry, got %+v", listed)
	}

	updateBody := `{"title":"The Expanse (S1)","status":"watching","rating":9.0,"tags":["SciFi","Space"]}`
	recorder = performRequest(handler, http.MethodPut, "/entries/"+created.ID, token, updateBody)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var updated entries.EntryView
	if err := json.Unmarshal(recorder.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to decode updated entry: %v", err)
	}
	if updated.Title != "The Expanse (S1)" || updated.Version != 2 {
		t.Fatalf("unexpected updated entry: %+v", updated)
	}
	if len(updated.Tags) != 2 || updated.Tags[0] != "scifi" || updated.Tags[1] != "space" {
		t.Fatalf("expected reconciled tags, got %v", updated.Tags)
	}

	// A stale version stamp is a conflict, not a silent overwrite.
	recorder = performRequest(handler, http.MethodPut, "/entries/"+created.ID, token, `{"status":"completed","version":1}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected conflict, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = performRequest(handler, http.MethodDelete, "/entries/"+created.ID, token, "")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected no content, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = performRequest(handler, http.MethodGet, "/entries/"+created.ID, token, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found after delete, got %d", recorder.Code)
	}

	recorder = performRequest(handler, http.MethodGet, "/entries", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if listed.Total != 0 {
		t.Fatalf("expected deleted entry omitted from list, got %+v", listed)
	}
}

func TestEntriesAreTenantScopedOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	ownerToken := registerAndLogin(t, handler, "owner@example.com")
	otherToken := registerAndLogin(t, handler, "other@example.com")

	recorder := performRequest(handler, http.MethodPost, "/entries", ownerToken, `{"title":"Dune","type":"movie","status":"planning"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var created entries.EntryView
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode created entry: %v", err)
	}

	recorder = performRequest(handler, http.MethodGet, "/entries/"+created.ID, otherToken, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("foreign entries must read as not found, got %d", recorder.Code)
	}

	recorder = performRequest(handler, http.MethodDelete, "/entries/"+created.ID, otherToken, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("foreign entries must not be deletable, got %d", recorder.Code)
	}
}
