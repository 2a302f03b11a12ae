package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/nimo-codes/internal/codes/service"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	ProductType    *ProductTypeHandler
	Classification *ClassificationHandler
	Code           *CodeHandler
	OperationLog   *OperationLogHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		ProductType:    NewProductTypeHandler(svc.ProductType),
		Classification: NewClassificationHandler(svc.Classification),
		Code:           NewCodeHandler(svc.Allocation),
		OperationLog:   NewOperationLogHandler(svc.OperationLog),
	}
}

// OperationLogHandler 操作日志查询
type OperationLogHandler struct {
	svc *service.OperationLogService
}

func NewOperationLogHandler(svc *service.OperationLogService) *OperationLogHandler {
	return &OperationLogHandler{svc: svc}
}

// List GET /operation-logs?entity_type=xxx&entity_id=xxx
func (h *OperationLogHandler) List(c *gin.Context) {
	entityType := c.Query("entity_type")
	entityID := c.Query("entity_id")
	if entityType == "" || entityID == "" {
		BadRequest(c, "entity_type 和 entity_id 不能为空")
		return
	}

	page, pageSize := GetPagination(c)
	items, total, err := h.svc.ListByEntity(c.Request.Context(), entityType, entityID, page, pageSize)
	if err != nil {
		InternalError(c, "获取操作日志失败: "+err.Error())
		return
	}
	Success(c, gin.H{
		"items":      items,
		"pagination": Pagination{Page: page, PageSize: pageSize, Total: total},
	})
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination 分页信息
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 状态冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// ServiceError 按业务错误类型翻译成HTTP响应
func ServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidExtension),
		errors.Is(err, service.ErrInvalidNumber),
		errors.Is(err, service.ErrCodeNotExtractable):
		BadRequest(c, err.Error())
	case errors.Is(err, service.ErrDuplicateCode),
		errors.Is(err, service.ErrAlreadyAllocated),
		errors.Is(err, service.ErrNotAllocated),
		errors.Is(err, service.ErrNotDeleted),
		errors.Is(err, service.ErrClassificationInUse),
		errors.Is(err, service.ErrUnsupportedStructure),
		errors.Is(err, service.ErrGenerationBusy):
		Conflict(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 500 {
			pageSize = v
		}
	}

	return page, pageSize
}
