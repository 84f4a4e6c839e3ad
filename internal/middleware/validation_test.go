package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestValidateCardIDParam(t *testing.T) {
	tests := []struct {
		name       string
		cardID     string
		wantStatus int
	}{
		{"valid uuid", "550e8400-e29b-41d4-a716-446655440000", http.StatusOK},
		{"valid short", "card123", http.StatusOK},
		{"too long", strings.Repeat("a", 129), http.StatusBadRequest},
		{"invalid chars", "card@123", http.StatusBadRequest},
		{"empty", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/", nil)
			c.Params = gin.Params{{Key: "card_id", Value: tt.cardID}}

			middleware := ValidateCardIDParam()
			middleware(c)

			if tt.wantStatus == http.StatusOK {
				assert.False(t, c.IsAborted())
			} else {
				assert.True(t, c.IsAborted())
				assert.Equal(t, tt.wantStatus, w.Code)
			}
		})
	}
}

func TestValidateWorkflowID(t *testing.T) {
	assert.True(t, ValidateWorkflowID("0123456789abcdef0123456789abcdef"))
	assert.False(t, ValidateWorkflowID("0123456789ABCDEF0123456789ABCDEF"), "大写 hex 不接受")
	assert.False(t, ValidateWorkflowID("short"))
	assert.False(t, ValidateWorkflowID(""))
}

func TestPayloadSizeLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/", strings.NewReader("body"))
	c.Request.ContentLength = MaxPayloadSize + 1

	PayloadSizeLimit(MaxPayloadSize)(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  "))
	assert.Equal(t, "ab", SanitizeString("a\x00b"))
	assert.Equal(t, "中文内容", SanitizeString("中文内容"))
}
