package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"kestrel/reader/internal/database"
	"kestrel/reader/internal/fever"
	"kestrel/reader/internal/storage"
)

func newAdminTestHandler(t *testing.T) *adminHandler {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "reader.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := storage.NewRepository(db)
	return newAdminHandler(repo, fever.NewCredentialStore(repo, "reader"))
}

func TestAdminAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	protected := adminAuthMiddleware(string(hash))(next)

	t.Run("no credentials", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/fever/settings", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/fever/settings", nil)
		req.SetBasicAuth("admin", "wrong")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong username", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/fever/settings", nil)
		req.SetBasicAuth("root", "hunter2")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/fever/settings", nil)
		req.SetBasicAuth("admin", "hunter2")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("disabled without hash", func(t *testing.T) {
		disabled := adminAuthMiddleware("")(next)
		req := httptest.NewRequest(http.MethodGet, "/admin/fever/settings", nil)
		req.SetBasicAuth("admin", "hunter2")
		rec := httptest.NewRecorder()
		disabled.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAdminSettingsAndReset(t *testing.T) {
	h := newAdminTestHandler(t)

	rec := httptest.NewRecorder()
	h.settings(rec, httptest.NewRequest(http.MethodGet, "/admin/fever/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var before settingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &before))
	assert.Equal(t, "reader", before.Username)
	assert.Equal(t, "/fever", before.EndpointPath)
	assert.Len(t, before.APIKey, 32)

	rec = httptest.NewRecorder()
	h.resetCredentials(rec, httptest.NewRequest(http.MethodPost, "/admin/fever/credentials/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var after settingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	assert.Equal(t, before.Username, after.Username)
	assert.NotEqual(t, before.APIKey, after.APIKey)
}

func TestAdminExportOPML(t *testing.T) {
	h := newAdminTestHandler(t)

	ctx := httptest.NewRequest(http.MethodGet, "/admin/subscriptions.opml", nil).Context()
	folderID, err := h.repo.GetOrCreateFolder(ctx, "Tech")
	require.NoError(t, err)
	_, _, err = h.repo.GetOrCreateFeed(ctx, &folderID, "Example", "https://example.com/rss", "https://example.com")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.exportOPML(rec, httptest.NewRequest(http.MethodGet, "/admin/subscriptions.opml", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `xmlUrl="https://example.com/rss"`)
	assert.Contains(t, rec.Body.String(), `text="Tech"`)
}
