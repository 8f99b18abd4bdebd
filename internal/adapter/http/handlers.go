package http

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/ReviewFlow/internal/domain/document"
	"github.com/Strob0t/ReviewFlow/internal/port/messagequeue"
	"github.com/Strob0t/ReviewFlow/internal/service"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Handlers bundles the services exposed over HTTP.
type Handlers struct {
	workflow *service.WorkflowService
	orch     *service.OrchestratorService
	pool     *pgxpool.Pool
	queue    messagequeue.Queue
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(workflow *service.WorkflowService, orch *service.OrchestratorService, pool *pgxpool.Pool, queue messagequeue.Queue) *Handlers {
	return &Handlers{workflow: workflow, orch: orch, pool: pool, queue: queue}
}

// actorFromRequest builds the acting identity from request headers. Identity
// is asserted by the internal gateway in front of this service; the workflow
// still enforces role and ownership checks.
func actorFromRequest(r *http.Request) (service.Actor, bool) {
	actor := service.Actor{
		ID:   r.Header.Get("X-User-ID"),
		Name: r.Header.Get("X-User-Name"),
		Role: document.Role(r.Header.Get("X-User-Role")),
	}
	if actor.ID == "" || actor.Role == "" {
		return actor, false
	}
	return actor, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "X-User-ID and X-User-Role headers are required")
	}
	return actor, ok
}

// --- Documents ---

func (h *Handlers) CreateDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[document.CreateRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	req.OwnerID = actor.ID

	doc, err := h.workflow.CreateDocument(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "document not created")
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.workflow.GetDocument(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		if actor, ok := actorFromRequest(r); ok {
			ownerID = actor.ID
		}
	}
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	docs, err := h.workflow.ListDocuments(r.Context(), ownerID)
	if err != nil {
		writeDomainError(w, err, "documents not found")
		return
	}
	if docs == nil {
		docs = []document.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

type updateDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *Handlers) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[updateDocumentRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}

	doc, err := h.workflow.UpdateContent(r.Context(), urlParam(r, "id"), actor, req.Title, req.Content)
	if err != nil {
		writeDomainError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// --- Transitions ---

func (h *Handlers) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	doc, err := h.workflow.Submit(r.Context(), urlParam(r, "id"), actor)
	if err != nil {
		writeDomainError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (h *Handlers) ApproveDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	doc, err := h.workflow.Approve(r.Context(), urlParam(r, "id"), actor)
	if err != nil {
		writeDomainError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) RejectDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[rejectRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	doc, err := h.workflow.Reject(r.Context(), urlParam(r, "id"), actor, req.Reason)
	if err != nil {
		writeDomainError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) ForceAdvanceDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	doc, err := h.workflow.ForceAdvance(r.Context(), urlParam(r, "id"), actor)
	if err != nil {
		writeDomainError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// --- Analysis ---

func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := h.orch.GetAnalysis(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Health ---

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Queue    string `json:"queue"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok", Queue: "ok"}
	status := http.StatusOK

	if err := h.pool.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if h.queue == nil || !h.queue.IsConnected() {
		resp.Status = "degraded"
		resp.Queue = "disconnected"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
