package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// MaxPayloadSize 最大 payload 大小（2MB）
	MaxPayloadSize = 2 * 1024 * 1024
)

var (
	// CardIDRegex 卡片 ID 正则（字母数字连字符，1-128字符）
	CardIDRegex = regexp.MustCompile(`^[a-zA-Z0-9-]{1,128}$`)

	// WorkflowIDRegex 工作流 ID 正则（hex，32字符）
	WorkflowIDRegex = regexp.MustCompile(`^[a-f0-9]{32}$`)
)

// PayloadSizeLimit Payload 大小限制中间件
func PayloadSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "请求体过大，最大允许 2MB",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ValidateCardID 验证卡片 ID
func ValidateCardID(cardID string) bool {
	return CardIDRegex.MatchString(cardID)
}

// ValidateWorkflowID 验证工作流 ID
func ValidateWorkflowID(workflowID string) bool {
	return WorkflowIDRegex.MatchString(workflowID)
}

// SanitizeString 清理字符串（去除危险字符）
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)

	var builder strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ValidateCardIDParam Gin 中间件：验证路径参数中的 card_id
func ValidateCardIDParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		cardID := c.Param("card_id")
		if cardID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "card_id 参数缺失",
			})
			c.Abort()
			return
		}

		if !ValidateCardID(cardID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "card_id 格式无效，必须是1-128个字母、数字或连字符",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ValidateWorkflowIDParam Gin 中间件：验证路径参数中的 workflow_id
func ValidateWorkflowIDParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		workflowID := c.Param("workflow_id")
		if workflowID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "workflow_id 参数缺失",
			})
			c.Abort()
			return
		}

		if !ValidateWorkflowID(workflowID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "workflow_id 格式无效，必须是32位 hex 字符串",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CORSMiddleware CORS 中间件（内部系统可选）
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
