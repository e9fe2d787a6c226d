package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/medchain/provenance/pkg/provenance"
)

// RecordHandler handles HTTP requests for record provenance operations
type RecordHandler struct {
	engine provenance.Engine
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(engine provenance.Engine) *RecordHandler {
	return &RecordHandler{engine: engine}
}

// NewRouter returns the full API router with gateway-token verification
// applied to every route.
func NewRouter(engine provenance.Engine, tokenAuth *jwtauth.JWTAuth) chi.Router {
	h := NewRecordHandler(engine)

	r := chi.NewRouter()
	r.Use(jwtauth.Verifier(tokenAuth))
	r.Use(jwtauth.Authenticator)
	r.Mount("/", h.Routes())
	return r
}

// Routes returns the routes for record provenance
func (h *RecordHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/content", h.UploadContent)
	r.Get("/content/{contentID}", h.DownloadContent)

	r.Post("/records", h.RegisterRecord)
	r.Post("/records/mint", h.Mint)
	r.Get("/records", h.ListRecords)
	r.Get("/records/shared", h.ListSharedRecords)

	r.Post("/tokens/{tokenID}/grants", h.GrantAccess)
	r.Delete("/tokens/{tokenID}/grants/{grantee}", h.RevokeAccess)
	r.Post("/tokens/{tokenID}/reconcile", h.Reconcile)

	return r
}

// UploadContentResponse is the response body for a content upload
type UploadContentResponse struct {
	ContentID string `json:"content_id"`
}

// UploadContent stores a blob and returns its content id. Accepts
// either a multipart "file" field or a raw request body.
func (h *RecordHandler) UploadContent(w http.ResponseWriter, r *http.Request) {
	var reader io.Reader = r.Body

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file uploaded", http.StatusBadRequest)
			return
		}
		defer file.Close()
		reader = file
	}

	contentID, err := h.engine.UploadContent(r.Context(), reader)
	if err != nil {
		slog.Error("Failed to upload content", "error", err)
		writeEngineError(w, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, UploadContentResponse{ContentID: string(contentID)})
}

// DownloadContent streams a blob back to the caller
func (h *RecordHandler) DownloadContent(w http.ResponseWriter, r *http.Request) {
	contentID := provenance.ContentID(chi.URLParam(r, "contentID"))

	rc, err := h.engine.DownloadContent(r.Context(), contentID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("Failed to stream content", "content_id", contentID, "error", err)
	}
}

// RegisterRecordRequest is the request body for registering a record
type RegisterRecordRequest struct {
	ContentRef  string `json:"content_ref"`
	Description string `json:"description"`
}

// RegisterRecord creates an index-only pending entry
func (h *RecordHandler) RegisterRecord(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req RegisterRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ContentRef == "" {
		http.Error(w, "content_ref is required", http.StatusBadRequest)
		return
	}

	entry, err := h.engine.RegisterRecord(r.Context(), provenance.RegisterRecordRequest{
		Identity:    identity,
		ContentRef:  provenance.ContentID(req.ContentRef),
		Description: req.Description,
	})
	if err != nil {
		slog.Error("Failed to register record", "identity", identity, "error", err)
		writeEngineError(w, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, entry)
}

// MintRequest is the request body for minting a record token
type MintRequest struct {
	ContentRef string `json:"content_ref"`
}

// Mint creates the on-chain token for a content ref
func (h *RecordHandler) Mint(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ContentRef == "" {
		http.Error(w, "content_ref is required", http.StatusBadRequest)
		return
	}

	result, err := h.engine.Mint(r.Context(), provenance.MintRequest{
		Owner:      identity,
		ContentRef: provenance.ContentID(req.ContentRef),
	})
	if err != nil {
		slog.Error("Failed to mint record token", "identity", identity, "error", err)
		writeEngineError(w, err)
		return
	}

	// Partial success still reports 201: the token exists on-ledger and
	// the response carries the unindexed flag for the caller.
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// GrantRequest is the request body for granting access
type GrantRequest struct {
	Grantee string `json:"grantee"`
}

// GrantAccess adds a grantee to a token's access list
func (h *RecordHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	tokenID, err := parseTokenID(r)
	if err != nil {
		http.Error(w, "invalid token id", http.StatusBadRequest)
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Grantee == "" {
		http.Error(w, "grantee is required", http.StatusBadRequest)
		return
	}

	err = h.engine.GrantAccess(r.Context(), provenance.GrantAccessRequest{
		Owner:   identity,
		TokenID: tokenID,
		Grantee: provenance.NormalizeIdentity(req.Grantee),
	})
	if err != nil {
		slog.Error("Failed to grant access", "token_id", tokenID, "error", err)
		writeEngineError(w, err)
		return
	}

	render.NoContent(w, r)
}

// RevokeAccess removes a grantee from a token's access list
func (h *RecordHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	tokenID, err := parseTokenID(r)
	if err != nil {
		http.Error(w, "invalid token id", http.StatusBadRequest)
		return
	}

	grantee := chi.URLParam(r, "grantee")
	if grantee == "" {
		http.Error(w, "grantee is required", http.StatusBadRequest)
		return
	}

	err = h.engine.RevokeAccess(r.Context(), provenance.RevokeAccessRequest{
		Owner:   identity,
		TokenID: tokenID,
		Grantee: provenance.NormalizeIdentity(grantee),
	})
	if err != nil {
		slog.Error("Failed to revoke access", "token_id", tokenID, "error", err)
		writeEngineError(w, err)
		return
	}

	render.NoContent(w, r)
}

// ListRecords returns the caller's own records
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	records, err := h.engine.ListRecordsFor(r.Context(), identity)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if records == nil {
		records = []*provenance.MedicalRecordEntry{}
	}

	render.JSON(w, r, records)
}

// ListSharedRecords returns records granted to the caller
func (h *RecordHandler) ListSharedRecords(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	records, err := h.engine.ListRecordsSharedWith(r.Context(), identity)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if records == nil {
		records = []*provenance.MedicalRecordEntry{}
	}

	render.JSON(w, r, records)
}

// Reconcile rebuilds the token's index rows from ledger truth
func (h *RecordHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	tokenID, err := parseTokenID(r)
	if err != nil {
		http.Error(w, "invalid token id", http.StatusBadRequest)
		return
	}

	entry, err := h.engine.Reconcile(r.Context(), tokenID)
	if err != nil {
		slog.Error("Failed to reconcile token", "token_id", tokenID, "error", err)
		writeEngineError(w, err)
		return
	}

	render.JSON(w, r, entry)
}

func parseTokenID(r *http.Request) (provenance.TokenID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil {
		return 0, err
	}
	return provenance.TokenID(id), nil
}

// writeEngineError maps the engine taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provenance.ErrNotOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, provenance.ErrTokenNotFound),
		errors.Is(err, provenance.ErrRecordNotFound),
		errors.Is(err, provenance.ErrContentNotFound),
		errors.Is(err, provenance.ErrUserResolutionFailed):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, provenance.ErrMintRejected):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, provenance.ErrMintTimeout),
		errors.Is(err, provenance.ErrConfirmationTimeout):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, provenance.ErrStorageUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
