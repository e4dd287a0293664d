package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ally-backend/classifier"
	"ally-backend/service"
	"ally-backend/vectorstore"
)

const maxQueryLength = 2000

// QueryHandler handles HTTP requests for the question-answering pipeline
type QueryHandler struct {
	assistant *service.AssistantService
	index     vectorstore.Index
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(assistant *service.AssistantService, index vectorstore.Index) *QueryHandler {
	return &QueryHandler{
		assistant: assistant,
		index:     index,
	}
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (h *QueryHandler) bindQuery(c *gin.Context) (queryRequest, bool) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Request body must be JSON with a query field",
			},
		})
		return req, false
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "EMPTY_QUERY",
				"message": "Query must not be empty",
			},
		})
		return req, false
	}
	if len(req.Query) > maxQueryLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "QUERY_TOO_LONG",
				"message": "Query exceeds the maximum length",
			},
		})
		return req, false
	}
	return req, true
}

// Validate handles POST /api/validate
func (h *QueryHandler) Validate(c *gin.Context) {
	req, ok := h.bindQuery(c)
	if !ok {
		return
	}

	result := h.assistant.Validate(c.Request.Context(), req.Query)
	resp := gin.H{
		"success":    true,
		"validation": result,
	}
	if !result.IsValid {
		resp["rejection_message"] = classifier.RejectionMessage(result.Category)
	}
	c.JSON(http.StatusOK, resp)
}

// Search handles POST /search
func (h *QueryHandler) Search(c *gin.Context) {
	req, ok := h.bindQuery(c)
	if !ok {
		return
	}

	outcome := h.assistant.Search(c.Request.Context(), req.Query, req.TopK)
	c.JSON(http.StatusOK, gin.H{
		"success": !outcome.Rejected,
		"result":  outcome,
	})
}

// Query handles POST /api/query
func (h *QueryHandler) Query(c *gin.Context) {
	req, ok := h.bindQuery(c)
	if !ok {
		return
	}

	outcome := h.assistant.Answer(c.Request.Context(), req.Query)
	c.JSON(http.StatusOK, gin.H{
		"success": !outcome.Rejected,
		"result":  outcome,
	})
}

// Health handles GET /health
func (h *QueryHandler) Health(c *gin.Context) {
	stats, err := h.index.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"vector_count": stats.Count,
		"dimension":    stats.Dimension,
	})
}

// Root handles GET /
func (h *QueryHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "ally-backend",
		"message": "Legal research assistant API. POST a question to /api/query.",
	})
}
