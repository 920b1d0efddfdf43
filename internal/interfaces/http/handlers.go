package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/replication"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/service"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/workflow"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	domainwf "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Dependencies
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	return &Handlers{deps: deps, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// CreateRequestBody is the body of POST /api/requests
type CreateRequestBody struct {
	service.RequestInput
	AutoSubmit bool `json:"auto_submit"`
}

// RequestView is a request as returned to callers
type RequestView struct {
	*entity.RequestRecord
	AvailableIntents []workflow.IntentKind `json:"available_intents,omitempty"`
}

// CacheStatusResponse describes the local cache
type CacheStatusResponse struct {
	Reconcile replication.Status `json:"reconcile"`
	Directory DirectoryStatus    `json:"directory"`
}

// DirectoryStatus describes the directory snapshot
type DirectoryStatus struct {
	Users    int       `json:"users"`
	Accounts int       `json:"accounts"`
	LoadedAt time.Time `json:"loaded_at"`
}

// ListRequestsQuery represents query parameters for listing requests
type ListRequestsQuery struct {
	Status       string `form:"status"`
	CreatedBy    string `form:"createdBy"`
	NextApprover string `form:"nextApprover"`
	Involved     string `form:"involved"`
	Theater      string `form:"theater"`
	Quarter      string `form:"quarter"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if h.deps.Health != nil {
		healthy, details := h.deps.Health(c.Request.Context())
		response.Components = details
		if !healthy {
			response.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, Response{
		Success: code == http.StatusOK,
		Data:    response,
	})
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	actor := actorOf(c)
	req, err := h.deps.Service.CreateRequest(c.Request.Context(), actor, body.RequestInput, body.AutoSubmit)
	if err != nil {
		// a failed auto-submit still created the draft
		if req != nil {
			c.JSON(statusFor(err), Response{Success: false, Data: h.view(c, req), Error: err.Error()})
			return
		}
		h.fail(c, "Failed to create request", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: h.view(c, req)})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	filter, err := q.toFilter()
	if err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}

	requests, err := h.deps.Service.ListRequests(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to list requests", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toRecords(requests)})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.deps.Service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get request", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: h.view(c, req)})
}

// UpdateDraft handles PUT /api/requests/:id
func (h *Handlers) UpdateDraft(c *gin.Context) {
	var input service.RequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	req, err := h.deps.Service.UpdateDraft(c.Request.Context(), c.Param("id"), actorOf(c), input)
	if err != nil {
		h.fail(c, "Failed to update draft", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: h.view(c, req)})
}

// DeleteDraft handles DELETE /api/requests/:id
func (h *Handlers) DeleteDraft(c *gin.Context) {
	if err := h.deps.Service.DeleteDraft(c.Request.Context(), c.Param("id"), actorOf(c)); err != nil {
		h.fail(c, "Failed to delete draft", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// SubmitIntent handles POST /api/requests/:id/intents/:kind
func (h *Handlers) SubmitIntent(c *gin.Context) {
	kind, err := workflow.ParseIntentKind(c.Param("kind"))
	if err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}

	var payload service.IntentPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			h.badRequest(c, "invalid request body", err)
			return
		}
	}

	req, err := h.deps.Service.SubmitIntent(c.Request.Context(), c.Param("id"), kind, actorOf(c), payload)
	if err != nil {
		h.fail(c, "Intent refused", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: h.view(c, req)})
}

// GetHistory handles GET /api/requests/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	history, err := h.deps.Service.GetApprovalHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get approval history", err)
		return
	}
	if history == nil {
		history = []entity.ApprovalHistoryEntry{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// GetAuditTrail handles GET /api/requests/:id/audit
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	trail, err := h.deps.Service.GetAuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get audit trail", err)
		return
	}
	if trail == nil {
		trail = []*entity.AuditEntry{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: trail})
}

// PendingApprovals handles GET /api/approvals/pending
func (h *Handlers) PendingApprovals(c *gin.Context) {
	requests, err := h.deps.Service.PendingApprovals(c.Request.Context(), actorOf(c))
	if err != nil {
		h.fail(c, "Failed to list pending approvals", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toRecords(requests)})
}

// ApprovalChainQuery selects whose chain to preview. Owner defaults to the caller.
type ApprovalChainQuery struct {
	Owner   string `form:"owner"`
	Theater string `form:"theater"`
}

// ApprovalChain handles GET /api/approval-chain
func (h *Handlers) ApprovalChain(c *gin.Context) {
	var q ApprovalChainQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "Invalid query parameters", err)
		return
	}
	if q.Owner == "" {
		q.Owner = actorOf(c)
	}

	steps, err := h.deps.Service.PreviewApprovalChain(c.Request.Context(), q.Owner, q.Theater)
	if err != nil {
		h.fail(c, "Failed to resolve approval chain", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// ListParked handles GET /api/sync/parked
func (h *Handlers) ListParked(c *gin.Context) {
	if h.deps.Sync == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "sync is not available"})
		return
	}
	tasks, err := h.deps.Sync.Parked(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list parked tasks", err)
		return
	}
	if tasks == nil {
		tasks = []*entity.PropagationTask{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tasks})
}

// RequeueParked handles POST /api/sync/parked/:seq/requeue
func (h *Handlers) RequeueParked(c *gin.Context) {
	if h.deps.Sync == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "sync is not available"})
		return
	}
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq <= 0 {
		h.badRequest(c, "seq must be a positive integer", err)
		return
	}

	task, err := h.deps.Sync.Requeue(c.Request.Context(), seq)
	if err != nil {
		h.fail(c, "Failed to requeue task", err)
		return
	}
	h.logger.Info("Parked task requeued", "seq", seq, "actor_id", actorOf(c))
	c.JSON(http.StatusOK, Response{Success: true, Data: task})
}

// CacheStatus handles GET /api/cache/status
func (h *Handlers) CacheStatus(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.cacheStatus()})
}

// RefreshCache handles POST /api/cache/refresh. The run happens in the
// background; poll /api/cache/status for progress.
func (h *Handlers) RefreshCache(c *gin.Context) {
	if h.deps.Cache == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "reconciler is not available"})
		return
	}
	h.deps.Cache.Trigger(true)
	h.logger.Info("Cache refresh requested", "actor_id", actorOf(c))
	c.JSON(http.StatusAccepted, Response{Success: true, Data: h.cacheStatus()})
}

func (h *Handlers) cacheStatus() CacheStatusResponse {
	var resp CacheStatusResponse
	if h.deps.Cache != nil {
		resp.Reconcile = h.deps.Cache.Status()
	}
	if h.deps.Directory != nil {
		users, accounts, loadedAt := h.deps.Directory.Stats()
		resp.Directory = DirectoryStatus{Users: users, Accounts: accounts, LoadedAt: loadedAt}
	}
	return resp
}

func (h *Handlers) view(c *gin.Context, req *entity.InvestmentRequest) RequestView {
	v := RequestView{RequestRecord: req.ToRecord()}
	intents, err := h.deps.Service.AvailableIntents(c.Request.Context(), req.ID, actorOf(c))
	if err == nil {
		v.AvailableIntents = intents
	}
	return v
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Info("Bad request", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err, "path", c.Request.URL.Path)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}
	h.logger.Info(msg, "error", err, "path", c.Request.URL.Path, "status", status)
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domainwf.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, port.ErrAlreadyExists),
		errors.Is(err, replication.ErrTaskNotParked),
		errors.Is(err, replication.ErrReconcileInProgress):
		return http.StatusConflict
	case errors.Is(err, domainwf.ErrNoApproverFound),
		errors.Is(err, domainwf.ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, domainwf.ErrInvalidState):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (q ListRequestsQuery) toFilter() (port.RequestFilter, error) {
	filter := port.RequestFilter{
		CreatedBy:      q.CreatedBy,
		NextApproverID: q.NextApprover,
		InvolvedUser:   q.Involved,
		Theater:        q.Theater,
		Quarter:        q.Quarter,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	if q.Status != "" {
		for _, raw := range strings.Split(q.Status, ",") {
			st, err := domainwf.ParseState(strings.ToUpper(strings.TrimSpace(raw)))
			if err != nil {
				return filter, err
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	return filter, nil
}

func toRecords(requests []*entity.InvestmentRequest) []*entity.RequestRecord {
	out := make([]*entity.RequestRecord, 0, len(requests))
	for _, r := range requests {
		out = append(out, r.ToRecord())
	}
	return out
}
