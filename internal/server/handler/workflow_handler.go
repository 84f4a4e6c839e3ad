package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/cardflow/internal/middleware"
	asynqx "github.com/azhengyongqin/cardflow/internal/queue"
	"github.com/azhengyongqin/cardflow/internal/repository"
	"github.com/azhengyongqin/cardflow/internal/server/dto"
	"github.com/azhengyongqin/cardflow/internal/workflow"
)

// WorkflowHandler 工作流相关 API Handler
type WorkflowHandler struct {
	manager *workflow.Manager
}

// NewWorkflowHandler 创建 WorkflowHandler
func NewWorkflowHandler(manager *workflow.Manager) *WorkflowHandler {
	return &WorkflowHandler{manager: manager}
}

// needsCard 卡级工作流必须带 card_id；批量工作流不能带
func needsCard(kind string) bool {
	switch kind {
	case asynqx.TypeCardProcessing, asynqx.TypeLinkEnrichment, asynqx.TypeScreenshot:
		return true
	default:
		return false
	}
}

// StartWorkflow godoc
// @Summary 启动工作流
// @Description 按类型启动工作流。kind 取值：card_processing、link_enrichment、screenshot、ai_backfill、card_cleanup。start_async 默认 true；false 时内联执行并返回结果
// @Tags Workflows
// @Accept json
// @Produce json
// @Param kind path string true "工作流类型短名"
// @Param request body dto.StartWorkflowRequest true "启动请求"
// @Success 200 {object} dto.StartWorkflowResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /workflows/{kind} [post]
func (h *WorkflowHandler) StartWorkflow(c *gin.Context) {
	kind, ok := workflow.KindFromSlug(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "未知的工作流类型"})
		return
	}

	var req dto.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	if needsCard(kind) {
		if req.CardID == "" {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "card_id 必填"})
			return
		}
		if !middleware.ValidateCardID(req.CardID) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "card_id 格式无效"})
			return
		}
	} else if req.CardID != "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "批量工作流不接受 card_id"})
		return
	}

	// 默认异步
	startAsync := req.StartAsync == nil || *req.StartAsync

	outcome, err := h.manager.Start(c.Request.Context(), kind, req.CardID, startAsync)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "卡片不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.StartWorkflowResponse{
		WorkflowID: outcome.WorkflowID,
		Result:     outcome.Result,
	})
}

// GetRun godoc
// @Summary 查询运行记录
// @Description 根据 workflow_id 查询一次工作流运行的状态与结果
// @Tags Workflows
// @Produce json
// @Param workflow_id path string true "工作流运行 ID"
// @Success 200 {object} dto.WorkflowRunResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /workflows/runs/{workflow_id} [get]
func (h *WorkflowHandler) GetRun(c *gin.Context) {
	runID := c.Param("workflow_id")

	run, err := h.manager.GetRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "运行记录不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.WorkflowRunResponse{Run: run})
}

// RetryCard godoc
// @Summary 重试单卡富化
// @Description 管理端接口：重新入队指定卡片的处理工作流。卡片不存在返回 success=false reason=not_found，而非 404
// @Tags Admin
// @Produce json
// @Param card_id path string true "卡片 ID"
// @Success 200 {object} dto.RetryCardResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /admin/cards/{card_id}/retry [post]
func (h *WorkflowHandler) RetryCard(c *gin.Context) {
	cardID := c.Param("card_id")

	outcome, err := h.manager.RetryCardEnrichment(c.Request.Context(), cardID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.RetryCardResponse{
		RequestedAt: outcome.RequestedAt,
		Success:     outcome.Success,
		Reason:      outcome.Reason,
	})
}
