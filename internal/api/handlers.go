package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dispatch/internal/docservice"
)

const maxBody = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		Scan the vault and list publishable documents
//	@Tags			documents
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum number of documents (0 = all)"
//	@Success		200		{object}	DocumentListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Scan(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

// DocumentDiff handles GET /api/documents/{slug}/diff.
//
//	@Summary		Compare a document with its published copy
//	@Tags			documents
//	@Produce		json
//	@Param			slug	path		string	true	"Document slug"
//	@Success		200		{object}	DiffResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{slug}/diff [get]
func (h *Handler) DocumentDiff(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Diff(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "diff", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AddTag handles POST /api/documents/tags.
//
//	@Summary		Add a tag to a document's header
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddTagRequest	true	"Document and tag"
//	@Success		200		{object}	AddTagResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/tags [post]
func (h *Handler) AddTag(w http.ResponseWriter, r *http.Request) {
	var req AddTagRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" || strings.TrimSpace(req.Tag) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and tag are required"))
		return
	}
	tags, err := h.svc.AddTag(r.Context(), req.Path, req.Tag)
	if err != nil {
		writeError(w, "add tag", err)
		return
	}
	writeJSON(w, http.StatusOK, AddTagResponse{Path: req.Path, Tags: tags})
}

// RepositoryStatus handles GET /api/repository/status.
//
//	@Summary		Report the publication repository state
//	@Tags			repository
//	@Produce		json
//	@Success		200	{object}	models.RepositoryState
//	@Security		BearerAuth
//	@Router			/repository/status [get]
func (h *Handler) RepositoryStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// Publish handles POST /api/publish.
//
//	@Summary		Publish a vault document
//	@Tags			repository
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PublishRequest	true	"Source document and slug"
//	@Success		200		{object}	publish.Result
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/publish [post]
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SourcePath == "" || req.Slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source_path and slug are required"))
		return
	}
	res, err := h.svc.Publish(r.Context(), req.SourcePath, req.Slug)
	if err != nil {
		writeError(w, "publish", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Unpublish handles POST /api/unpublish.
//
//	@Summary		Move a published document back to drafts
//	@Tags			repository
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UnpublishRequest	true	"Slug"
//	@Success		200		{object}	publish.Result
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/unpublish [post]
func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	var req UnpublishRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("slug is required"))
		return
	}
	res, err := h.svc.Unpublish(r.Context(), req.Slug)
	if err != nil {
		writeError(w, "unpublish", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// History handles GET /api/history.
//
//	@Summary		Publish history of one document, or recent transitions
//	@Tags			repository
//	@Produce		json
//	@Param			slug	query		string	false	"Document slug"
//	@Param			limit	query		int		false	"Maximum entries"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.History(r.Context(), r.URL.Query().Get("slug"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Assets handles GET /api/assets.
//
//	@Summary		Report CDN asset usage
//	@Tags			assets
//	@Produce		json
//	@Success		200	{object}	assets.Report
//	@Security		BearerAuth
//	@Router			/assets [get]
func (h *Handler) Assets(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Assets(r.Context())
	if err != nil {
		writeError(w, "assets", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
