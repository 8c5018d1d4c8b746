package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
)

// Escrow is the engine surface the project routes call; *escrow.Engine
// implements it.
type Escrow interface {
	CreateProject(ctx context.Context, caller, client, freelancer escrow.Address, prices []uint64) (uint64, error)
	AddObjectives(ctx context.Context, caller escrow.Address, projectID uint64, prices []uint64) error
	FundObjective(ctx context.Context, caller escrow.Address, projectID, objectiveID uint64) error
	CompleteObjective(ctx context.Context, caller escrow.Address, projectID, objectiveID uint64) error
	CancelProject(ctx context.Context, caller escrow.Address, projectID uint64) error
	CompleteProject(ctx context.Context, caller escrow.Address, projectID uint64) error
	RefundRemainingFunds(ctx context.Context, caller escrow.Address, projectID uint64) (uint64, error)
	Project(ctx context.Context, id uint64) (*escrow.Project, error)
	ProjectsByClient(ctx context.Context, addr escrow.Address) ([]*escrow.Project, error)
	ProjectsByFreelancer(ctx context.Context, addr escrow.Address) ([]*escrow.Project, error)
}

type ProjectHandler struct {
	engine Escrow
	logger *zap.Logger
}

func NewProjectHandler(engine Escrow, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{engine: engine, logger: logger}
}

type createProjectRequest struct {
	Client     string   `json:"client"`
	Freelancer string   `json:"freelancer" binding:"required"`
	Prices     []uint64 `json:"prices"`
}

// CreateProject handles POST /projects. client defaults to the caller.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	caller := Caller(c)
	client := escrow.Address(req.Client)
	if client == "" {
		client = caller
	}

	id, err := h.engine.CreateProject(c.Request.Context(), caller, client, escrow.Address(req.Freelancer), req.Prices)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project_id": id})
}

type pricesRequest struct {
	Prices []uint64 `json:"prices" binding:"required"`
}

// AddObjectives handles POST /projects/:id/objectives
func (h *ProjectHandler) AddObjectives(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req pricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if err := h.engine.AddObjectives(c.Request.Context(), Caller(c), id, req.Prices); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "added", "project_id": id})
}

// FundObjective handles POST /projects/:id/objectives/:oid/fund
func (h *ProjectHandler) FundObjective(c *gin.Context) {
	h.objectiveAction(c, "funded", h.engine.FundObjective)
}

// CompleteObjective handles POST /projects/:id/objectives/:oid/complete
func (h *ProjectHandler) CompleteObjective(c *gin.Context) {
	h.objectiveAction(c, "completed", h.engine.CompleteObjective)
}

func (h *ProjectHandler) objectiveAction(c *gin.Context, status string, action func(context.Context, escrow.Address, uint64, uint64) error) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	oid, ok := uintParam(c, "oid")
	if !ok {
		return
	}
	if err := action(c.Request.Context(), Caller(c), id, oid); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "project_id": id, "objective_id": oid})
}

// CancelProject handles POST /projects/:id/cancel
func (h *ProjectHandler) CancelProject(c *gin.Context) {
	h.projectAction(c, "cancelled", h.engine.CancelProject)
}

// CompleteProject handles POST /projects/:id/complete
func (h *ProjectHandler) CompleteProject(c *gin.Context) {
	h.projectAction(c, "completed", h.engine.CompleteProject)
}

func (h *ProjectHandler) projectAction(c *gin.Context, status string, action func(context.Context, escrow.Address, uint64) error) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := action(c.Request.Context(), Caller(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "project_id": id})
}

// RefundRemainingFunds handles POST /projects/:id/refund
func (h *ProjectHandler) RefundRemainingFunds(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	amount, err := h.engine.RefundRemainingFunds(c.Request.Context(), Caller(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "refunded": amount})
}

// GetProject handles GET /projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	p, err := h.engine.Project(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, projectView(p))
}

// ListProjects handles GET /projects?client= and GET /projects?freelancer=
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	client, freelancer := c.Query("client"), c.Query("freelancer")

	var (
		projects []*escrow.Project
		err      error
	)
	switch {
	case client != "" && freelancer == "":
		projects, err = h.engine.ProjectsByClient(c.Request.Context(), escrow.Address(client))
	case freelancer != "" && client == "":
		projects, err = h.engine.ProjectsByFreelancer(c.Request.Context(), escrow.Address(freelancer))
	default:
		badRequest(c, "exactly one of client or freelancer is required")
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	views := make([]gin.H, 0, len(projects))
	for _, p := range projects {
		views = append(views, projectView(p))
	}
	c.JSON(http.StatusOK, gin.H{"projects": views, "count": len(views)})
}

func projectView(p *escrow.Project) gin.H {
	objectives := make([]gin.H, 0, len(p.Objectives))
	for i, o := range p.Objectives {
		objectives = append(objectives, gin.H{
			"id":           i,
			"price":        o.Price,
			"deposit_paid": o.DepositPaid,
			"state":        o.State(),
		})
	}
	return gin.H{
		"id":                   p.ID,
		"client":               p.Client,
		"freelancer":           p.Freelancer,
		"objectives":           objectives,
		"objectives_count":     p.ObjectivesCount,
		"completed_objectives": p.CompletedObjectives,
		"earned_amount":        p.EarnedAmount,
		"held":                 p.Held,
		"cancelled":            p.Cancelled,
		"completed":            p.Completed,
	}
}

var _ Escrow = (*escrow.Engine)(nil)
