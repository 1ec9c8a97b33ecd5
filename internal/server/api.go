package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reputul/reputul-backend/internal/campaign"
	"github.com/reputul/reputul-backend/internal/config"
	"github.com/reputul/reputul-backend/internal/dispatch"
	apierrors "github.com/reputul/reputul-backend/internal/errors"
	"github.com/reputul/reputul-backend/internal/gate"
	"github.com/reputul/reputul-backend/internal/logging"
	"github.com/reputul/reputul-backend/internal/middleware"
	"github.com/reputul/reputul-backend/internal/models"
	"github.com/reputul/reputul-backend/internal/monitoring"
	"github.com/reputul/reputul-backend/internal/reconciler"
)

// APIServer represents the main API server
type APIServer struct {
	config     *config.Config
	router     *gin.Engine
	db         *pgxpool.Pool
	gate       *gate.Service
	reconciler *reconciler.Service
	engine     *campaign.Engine
	sequences  *campaign.SequenceStore
	dispatcher *dispatch.Dispatcher
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, db *pgxpool.Pool,
	gateService *gate.Service, reconcilerService *reconciler.Service,
	engine *campaign.Engine, sequences *campaign.SequenceStore,
	dispatcher *dispatch.Dispatcher) *APIServer {

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(&cfg.CORS))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config:     cfg,
		router:     router,
		db:         db,
		gate:       gateService,
		reconciler: reconcilerService,
		engine:     engine,
		sequences:  sequences,
		dispatcher: dispatcher,
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	// Rating gate (public, token-addressed)
	s.router.GET("/r/:token", s.handleGateInfo)
	s.router.POST("/r/:token", s.handleGateSubmit)

	v1 := s.router.Group("/api/v1")
	{
		// Provider webhooks (public, signature-verified)
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/email", s.handleEmailWebhook)
			webhooks.POST("/sms/status", s.handleSMSStatusWebhook)
			webhooks.POST("/sms/inbound", s.handleSMSInboundWebhook)
		}

		// Management API (server-to-server)
		api := v1.Group("")
		api.Use(middleware.APITokenAuth(&s.config.API))
		{
			api.POST("/review-requests", s.handleDispatchRequest)
			api.GET("/review-requests", s.handleListRequests)
			api.GET("/review-requests/:id", s.handleGetRequest)

			api.POST("/sequences", s.handleCreateSequence)
			api.GET("/sequences", s.handleListSequences)
			api.GET("/sequences/:id", s.handleGetSequence)
			api.POST("/sequences/:id/default", s.handleSetDefaultSequence)
			api.PATCH("/sequences/:id", s.handleUpdateSequence)

			api.POST("/executions", s.handleStartExecution)
			api.GET("/executions/:id", s.handleGetExecution)
			api.POST("/executions/:id/stop", s.handleStopExecution)
			api.POST("/executions/:id/cancel", s.handleCancelExecution)
		}
	}
}

func (s *APIServer) healthCheck(c *gin.Context) {
	if err := s.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleDispatchRequest sends a one-off review request message
func (s *APIServer) handleDispatchRequest(c *gin.Context) {
	var input dispatch.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	req, err := s.dispatcher.Dispatch(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrCustomerNotFound):
			respondError(c, apierrors.ErrCustomerNotFoundError)
		case errors.Is(err, dispatch.ErrOptedOut):
			respondError(c, apierrors.ErrOptedOutError)
		case errors.Is(err, dispatch.ErrInvalidRecipient):
			respondError(c, apierrors.NewInvalidRecipientError(err.Error()))
		case errors.Is(err, dispatch.ErrBusinessNotFound):
			respondError(c, apierrors.NewInvalidRequestError("business not found"))
		case req != nil:
			// Created in failed state; surface both the record and the failure
			c.JSON(http.StatusBadGateway, gin.H{"review_request": req, "error": apierrors.ErrDispatchFailedError})
		default:
			logging.LogError(err, "server", "dispatch_request")
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"review_request": req})
}

func (s *APIServer) handleGetRequest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("invalid review request id"))
		return
	}

	var req models.ReviewRequest
	err = s.db.QueryRow(c.Request.Context(), `
		SELECT id, customer_id, business_id, channel, status, provider_message_id,
		       execution_id, step_number, sent_at, delivered_at, opened_at, clicked_at,
		       completed_at, error_code, error_message, created_at
		FROM review_requests WHERE id = $1
	`, id).Scan(
		&req.ID, &req.CustomerID, &req.BusinessID, &req.Channel, &req.Status,
		&req.ProviderMessageID, &req.ExecutionID, &req.StepNumber, &req.SentAt,
		&req.DeliveredAt, &req.OpenedAt, &req.ClickedAt, &req.CompletedAt,
		&req.ErrorCode, &req.ErrorMessage, &req.CreatedAt,
	)
	if err != nil {
		respondError(c, apierrors.ErrRequestNotFoundError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"review_request": req})
}

// handleListRequests lists a business's review requests, newest first
func (s *APIServer) handleListRequests(c *gin.Context) {
	businessID, err := uuid.Parse(c.Query("business_id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("business_id query parameter is required"))
		return
	}

	rows, err := s.db.Query(c.Request.Context(), `
		SELECT id, customer_id, business_id, channel, status, provider_message_id,
		       execution_id, step_number, sent_at, delivered_at, opened_at, clicked_at,
		       completed_at, error_code, error_message, created_at
		FROM review_requests
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`, businessID)
	if err != nil {
		logging.LogError(err, "server", "list_requests")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	defer rows.Close()

	requests := []models.ReviewRequest{}
	for rows.Next() {
		var req models.ReviewRequest
		if err := rows.Scan(
			&req.ID, &req.CustomerID, &req.BusinessID, &req.Channel, &req.Status,
			&req.ProviderMessageID, &req.ExecutionID, &req.StepNumber, &req.SentAt,
			&req.DeliveredAt, &req.OpenedAt, &req.ClickedAt, &req.CompletedAt,
			&req.ErrorCode, &req.ErrorMessage, &req.CreatedAt,
		); err != nil {
			logging.LogError(err, "server", "list_requests")
			respondError(c, apierrors.ErrInternalServerError)
			return
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		logging.LogError(err, "server", "list_requests")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"review_requests": requests})
}

func (s *APIServer) handleCreateSequence(c *gin.Context) {
	var input campaign.CreateSequenceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	seq, err := s.sequences.Create(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, campaign.ErrNoSteps) {
			respondError(c, apierrors.NewInvalidRequestError("sequence must have at least one step"))
			return
		}
		logging.LogError(err, "server", "create_sequence")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"sequence": seq})
}

func (s *APIServer) handleListSequences(c *gin.Context) {
	orgID, err := uuid.Parse(c.Query("org_id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("org_id query parameter is required"))
		return
	}

	sequences, err := s.sequences.List(c.Request.Context(), orgID)
	if err != nil {
		logging.LogError(err, "server", "list_sequences")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sequences": sequences})
}

func (s *APIServer) handleGetSequence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("invalid sequence id"))
		return
	}

	seq, err := s.sequences.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, campaign.ErrSequenceNotFound) {
			respondError(c, apierrors.ErrSequenceNotFoundError)
			return
		}
		logging.LogError(err, "server", "get_sequence")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	steps, err := s.sequences.Steps(c.Request.Context(), id)
	if err != nil {
		logging.LogError(err, "server", "get_sequence_steps")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sequence": seq, "steps": steps})
}

func (s *APIServer) handleSetDefaultSequence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("invalid sequence id"))
		return
	}

	var body struct {
		OrgID uuid.UUID `json:"org_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	if err := s.sequences.SetDefault(c.Request.Context(), body.OrgID, id); err != nil {
		if errors.Is(err, campaign.ErrSequenceNotFound) {
			respondError(c, apierrors.ErrSequenceNotFoundError)
			return
		}
		logging.LogError(err, "server", "set_default_sequence")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *APIServer) handleUpdateSequence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("invalid sequence id"))
		return
	}

	var body struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	if err := s.sequences.SetActive(c.Request.Context(), id, *body.IsActive); err != nil {
		if errors.Is(err, campaign.ErrSequenceNotFound) {
			respondError(c, apierrors.ErrSequenceNotFoundError)
			return
		}
		logging.LogError(err, "server", "update_sequence")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStartExecution starts a campaign execution. With sequence_id it
// runs that sequence; with org_id alone it runs the org default.
func (s *APIServer) handleStartExecution(c *gin.Context) {
	var body struct {
		ReviewRequestID uuid.UUID  `json:"review_request_id" binding:"required"`
		SequenceID      *uuid.UUID `json:"sequence_id"`
		OrgID           *uuid.UUID `json:"org_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	var exec *models.CampaignExecution
	var err error
	switch {
	case body.SequenceID != nil:
		exec, err = s.engine.Start(c.Request.Context(), body.ReviewRequestID, *body.SequenceID)
	case body.OrgID != nil:
		exec, err = s.engine.StartDefault(c.Request.Context(), body.ReviewRequestID, *body.OrgID)
	default:
		respondError(c, apierrors.NewInvalidRequestError("sequence_id or org_id is required"))
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, campaign.ErrAlreadyRunning):
			respondError(c, apierrors.ErrAlreadyRunningError)
		case errors.Is(err, campaign.ErrSequenceNotFound):
			respondError(c, apierrors.ErrSequenceNotFoundError)
		case errors.Is(err, campaign.ErrNoDefaultSequence):
			respondError(c, apierrors.ErrNoDefaultError)
		case errors.Is(err, campaign.ErrSequenceInactive), errors.Is(err, campaign.ErrNoSteps):
			respondError(c, apierrors.NewInvalidRequestError(err.Error()))
		default:
			logging.LogError(err, "server", "start_execution")
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"execution": exec})
}

func (s *APIServer) handleGetExecution(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("invalid execution id"))
		return
	}

	exec, err := s.engine.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, campaign.ErrExecutionNotFound) {
			respondError(c, apierrors.ErrExecutionNotFoundError)
			return
		}
		logging.LogError(err, "server", "get_execution")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"execution": exec})
}

func (s *APIServer) handleStopExecution(c *gin.Context) {
	s.terminateExecution(c, func(id uuid.UUID) (*models.CampaignExecution, error) {
		return s.engine.Stop(c.Request.Context(), id, "stopped by operator")
	})
}

func (s *APIServer) handleCancelExecution(c *gin.Context) {
	s.terminateExecution(c, func(id uuid.UUID) (*models.CampaignExecution, error) {
		return s.engine.Cancel(c.Request.Context(), id)
	})
}

func (s *APIServer) terminateExecution(c *gin.Context, terminate func(uuid.UUID) (*models.CampaignExecution, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("invalid execution id"))
		return
	}

	exec, err := terminate(id)
	if err != nil {
		if errors.Is(err, campaign.ErrExecutionNotFound) {
			respondError(c, apierrors.ErrExecutionNotFoundError)
			return
		}
		logging.LogError(err, "server", "terminate_execution")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"execution": exec})
}

func respondError(c *gin.Context, err *apierrors.APIError) {
	middleware.RespondWithError(c, err)
}
