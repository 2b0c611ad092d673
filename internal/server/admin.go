package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/hlog"
	"golang.org/x/crypto/bcrypt"

	"kestrel/reader/internal/fever"
	"kestrel/reader/internal/opml"
	"kestrel/reader/internal/storage"
)

const adminUsername = "admin"

// adminAuthMiddleware protects the management surface with HTTP Basic
// auth verified against a bcrypt hash. An empty hash disables the
// surface entirely rather than leaving it open.
func adminAuthMiddleware(passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passwordHash == "" {
				http.Error(w, "Admin surface disabled", http.StatusForbidden)
				return
			}

			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="reader admin"`)
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			userOK := subtle.ConstantTimeCompare([]byte(username), []byte(adminUsername)) == 1
			passErr := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password))
			if !userOK || passErr != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="reader admin"`)
				http.Error(w, "Invalid credentials", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// adminHandler exposes the sync compatibility settings to the primary
// management surface.
type adminHandler struct {
	repo  storage.Repository
	creds *fever.CredentialStore
}

func newAdminHandler(repo storage.Repository, creds *fever.CredentialStore) *adminHandler {
	return &adminHandler{repo: repo, creds: creds}
}

type settingsResponse struct {
	fever.Credentials
	EndpointPath string `json:"endpoint_path"`
}

// settings returns the current sync credential material, provisioning
// it on first call.
func (h *adminHandler) settings(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.Ensure(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to load sync credentials")
		http.Error(w, "Failed to load credentials", http.StatusInternalServerError)
		return
	}
	writeAdminJSON(w, r, settingsResponse{Credentials: creds, EndpointPath: "/fever"})
}

// resetCredentials rotates the app password; every previously issued
// api key stops working immediately.
func (h *adminHandler) resetCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.Reset(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to reset sync credentials")
		http.Error(w, "Failed to reset credentials", http.StatusInternalServerError)
		return
	}
	writeAdminJSON(w, r, settingsResponse{Credentials: creds, EndpointPath: "/fever"})
}

// exportOPML dumps the current subscriptions, folders included.
func (h *adminHandler) exportOPML(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	folders, err := h.repo.ListFolders(ctx)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to list folders for export")
		http.Error(w, "Failed to export subscriptions", http.StatusInternalServerError)
		return
	}

	feeds, err := h.repo.ListFeeds(ctx)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to list feeds for export")
		http.Error(w, "Failed to export subscriptions", http.StatusInternalServerError)
		return
	}

	data, err := opml.Export("Reader subscriptions", folders, feeds)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to render OPML")
		http.Error(w, "Failed to export subscriptions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=subscriptions.opml")
	w.Write(data)
}

func writeAdminJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error writing JSON response")
	}
}
