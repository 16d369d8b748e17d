package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/nexus/internal/intelservice"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/store"
)

const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 50 << 20 // 50 MB
)

// Handler holds API route handlers.
type Handler struct {
	svc *intelservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *intelservice.Service) *Handler {
	return &Handler{svc: svc}
}

// entityID parses the {id} URL parameter, writing a 400 on failure.
func entityID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid entity id"))
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// CreateLink handles POST /api/links.
//
//	@Summary		Create a directed link between two entities
//	@Tags			graph
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateLinkRequest	true	"Link to create"
//	@Success		201		{object}	models.Link
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	l, err := h.svc.Link(r.Context(), req.SourceID, req.TargetID, req.RelationshipType, req.Weight)
	if err != nil {
		writeError(w, "create link", err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// EntityLinks handles GET /api/entities/{id}/links.
//
//	@Summary		List links leaving or reaching an entity
//	@Tags			graph
//	@Produce		json
//	@Param			id			path		string	true	"Entity ID"
//	@Param			direction	query		string	false	"Edge direction"	Enums(out, in)
//	@Success		200			{object}	LinksResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{id}/links [get]
func (h *Handler) EntityLinks(w http.ResponseWriter, r *http.Request) {
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	links, err := h.svc.Links(r.Context(), id, r.URL.Query().Get("direction"))
	if err != nil {
		writeError(w, "list links", err)
		return
	}
	writeJSON(w, http.StatusOK, LinksResponse{Links: links})
}

// EntityContext handles GET /api/entities/{id}/context.
//
//	@Summary		Human-readable context for an entity
//	@Tags			graph
//	@Produce		json
//	@Param			id	path		string	true	"Entity ID"
//	@Success		200	{object}	ContextResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{id}/context [get]
func (h *Handler) EntityContext(w http.ResponseWriter, r *http.Request) {
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{EntityID: id, Context: h.svc.Context(r.Context(), id)})
}

// ProcessDocument handles POST /api/documents.
//
//	@Summary		Ingest, classify and summarize a local file
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ProcessDocumentRequest	true	"File to process"
//	@Success		201		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	var req ProcessDocumentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	doc, err := h.svc.ProcessDocument(r.Context(), req.Path, req.RelatedTo)
	if err != nil {
		writeError(w, "process document", err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// UploadDocument handles POST /api/documents/upload (multipart/form-data, field "file").
// Optional repeated "related_to" fields take the form "<uuid>" or "<uuid>:<type>".
//
//	@Summary		Upload and process a file
//	@Tags			documents
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Source file"
//	@Param			related_to	formData	string	false	"Related entity, id or id:type"
//	@Success		201			{object}	DocumentDetail
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/upload [post]
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	var related []intelservice.Relation
	for _, raw := range r.MultipartForm.Value["related_to"] {
		idPart, relType, _ := strings.Cut(raw, ":")
		id, err := uuid.Parse(strings.TrimSpace(idPart))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid related_to id: "+idPart))
			return
		}
		related = append(related, intelservice.Relation{ID: id, RelationshipType: strings.TrimSpace(relType)})
	}

	doc, err := h.svc.ProcessUpload(r.Context(), header.Filename, file, related)
	if err != nil {
		writeError(w, "upload document", err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List documents newest first
//	@Tags			documents
//	@Produce		json
//	@Param			department	query		string	false	"Filter by department"
//	@Param			checksum	query		string	false	"Filter by content checksum"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	DocumentListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	docs, err := h.svc.ListDocuments(r.Context(), store.DocumentFilter{
		Department: models.Department(q.Get("department")),
		Checksum:   q.Get("checksum"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs})
}

// GetDocument handles GET /api/documents/{id}.
//
//	@Summary		Get a document and its artifacts
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{object}	DocumentDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	doc, err := h.svc.Document(r.Context(), id)
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/{id}.
//
//	@Summary		Delete a document and its artifacts
//	@Tags			documents
//	@Param			id	path	string	true	"Document ID"
//	@Success		204	"Document deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Text search across documents
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Classify handles POST /api/classify.
//
//	@Summary		Classify free text into a department
//	@Tags			classify
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ClassifyRequest	true	"Text to classify"
//	@Success		200		{object}	ClassifyResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/classify [post]
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Classify(req.Text))
}
