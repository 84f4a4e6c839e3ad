package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/middleware"
	"github.com/azhengyongqin/cardflow/internal/model"
	asynqx "github.com/azhengyongqin/cardflow/internal/queue"
	"github.com/azhengyongqin/cardflow/internal/repository"
	"github.com/azhengyongqin/cardflow/internal/server/dto"
	"github.com/azhengyongqin/cardflow/internal/workflow"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// CardHandler 卡片相关 API Handler
type CardHandler struct {
	cardRepo repository.CardRepository
	manager  *workflow.Manager
}

// NewCardHandler 创建 CardHandler
func NewCardHandler(cardRepo repository.CardRepository, manager *workflow.Manager) *CardHandler {
	return &CardHandler{
		cardRepo: cardRepo,
		manager:  manager,
	}
}

// NewCardID 生成一个随机 card_id（card- 前缀 + 16 字节 hex）
func NewCardID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return "card-" + hex.EncodeToString(b[:])
}

// CreateCard godoc
// @Summary 创建卡片
// @Description 创建卡片并自动触发异步处理工作流（skip_processing=true 时只建卡）
// @Tags Cards
// @Accept json
// @Produce json
// @Param request body dto.CreateCardRequest true "卡片创建请求"
// @Success 200 {object} dto.CreateCardResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /cards [post]
func (h *CardHandler) CreateCard(c *gin.Context) {
	var req dto.CreateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	// type 不填按 text 处理，分类阶段会基于内容修正
	cardType := model.CardType(req.Type)
	if req.Type == "" {
		cardType = model.CardTypeText
	}
	if !cardType.Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "type 无效"})
		return
	}

	if req.URL == "" && req.Content == "" && req.FileID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "url、content、file_id 至少要有一个"})
		return
	}

	card := repository.Card{
		CardID:   NewCardID(),
		OwnerID:  middleware.SanitizeString(req.OwnerID),
		Type:     cardType,
		URL:      req.URL,
		Content:  req.Content,
		Notes:    req.Notes,
		Tags:     req.Tags,
		FileID:   req.FileID,
		FileName: req.FileName,
		MimeType: req.MimeType,
		ProcessingStatus: model.BuildInitialProcessingStatus(model.InitialStatusParams{
			Now:      time.Now().UnixMilli(),
			CardType: cardType,
		}),
	}

	created, err := h.cardRepo.CreateCard(c.Request.Context(), card)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	resp := dto.CreateCardResponse{
		CardID: created.CardID,
		Type:   string(created.Type),
	}

	// 建卡成功后入队失败不回滚卡片，可通过管理端重试补触发
	if !req.SkipProcessing {
		outcome, err := h.manager.Start(c.Request.Context(), asynqx.TypeCardProcessing, created.CardID, true)
		if err != nil {
			logger.WithCardID(created.CardID).Warn().Err(err).Msg("自动触发处理工作流失败")
		} else {
			resp.WorkflowID = outcome.WorkflowID
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetCard godoc
// @Summary 获取卡片详情
// @Description 根据 card_id 获取卡片（含处理状态与富化结果）
// @Tags Cards
// @Produce json
// @Param card_id path string true "卡片 ID"
// @Success 200 {object} dto.CardResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /cards/{card_id} [get]
func (h *CardHandler) GetCard(c *gin.Context) {
	cardID := c.Param("card_id")

	card, err := h.cardRepo.GetCard(c.Request.Context(), cardID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "卡片不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.CardResponse{Card: card})
}

// ListCards godoc
// @Summary 卡片列表
// @Description 分页查询卡片，支持按 owner_id 和 type 过滤
// @Tags Cards
// @Produce json
// @Param owner_id query string false "归属用户"
// @Param type query string false "卡片类型"
// @Param limit query int false "每页数量（默认 20，最大 100）"
// @Param offset query int false "偏移量"
// @Success 200 {object} dto.CardListResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /cards [get]
func (h *CardHandler) ListCards(c *gin.Context) {
	var req dto.CardListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	if req.Type != "" && !model.CardType(req.Type).Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "type 无效"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	// 列表只出未删除的卡片
	notDeleted := false
	filter := repository.ListCardsFilter{
		OwnerID:   req.OwnerID,
		Type:      req.Type,
		IsDeleted: &notDeleted,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}

	ctx := c.Request.Context()
	cards, err := h.cardRepo.ListCards(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	total, err := h.cardRepo.CountCards(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.CardListResponse{Items: cards, Total: total})
}
