package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-codes/internal/codes/repository"
	"github.com/bitfantasy/nimo-codes/internal/codes/service"
	"github.com/gin-gonic/gin"
)

type CodeHandler struct {
	svc *service.AllocationService
}

func NewCodeHandler(svc *service.AllocationService) *CodeHandler {
	return &CodeHandler{svc: svc}
}

func listFilterFromQuery(c *gin.Context) repository.ListFilter {
	filter := repository.ListFilter{
		ModelClassificationID: c.Query("model_classification_id"),
		CodeClassificationID:  c.Query("code_classification_id"),
		Keyword:               c.Query("keyword"),
		IncludeDeleted:        c.Query("include_deleted") == "true",
	}
	if v := c.Query("is_allocated"); v != "" {
		allocated := v == "true"
		filter.IsAllocated = &allocated
	}
	return filter
}

// List GET /codes
func (h *CodeHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), listFilterFromQuery(c), page, pageSize)
	if err != nil {
		InternalError(c, "获取编码列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{
		"items":      items,
		"pagination": Pagination{Page: page, PageSize: pageSize, Total: total},
	})
}

// Get GET /codes/:id
func (h *CodeHandler) Get(c *gin.Context) {
	usage, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, usage)
}

// Allocate POST /codes/:id/allocate
func (h *CodeHandler) Allocate(c *gin.Context) {
	var input service.AllocateCodeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	usage, err := h.svc.AllocateCode(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, usage)
}

// CreateManual POST /model-classifications/:id/codes
func (h *CodeHandler) CreateManual(c *gin.Context) {
	var input service.CreateManualCodeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.svc.CreateManualCode(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	if result.Outcome == service.ManualOutcomeCreated {
		Created(c, result)
		return
	}
	Success(c, result)
}

// Update PUT /codes/:id
func (h *CodeHandler) Update(c *gin.Context) {
	var input service.UpdateEntryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	usage, err := h.svc.UpdateEntry(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, usage)
}

// SoftDelete DELETE /codes/:id
func (h *CodeHandler) SoftDelete(c *gin.Context) {
	var input service.SoftDeleteInput
	// 删除原因可省略
	c.ShouldBindJSON(&input)
	if err := h.svc.SoftDelete(c.Request.Context(), c.Param("id"), input.Reason, GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Restore POST /codes/:id/restore
func (h *CodeHandler) Restore(c *gin.Context) {
	usage, err := h.svc.Restore(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, usage)
}

// BatchSoftDelete POST /codes/batch-delete
func (h *CodeHandler) BatchSoftDelete(c *gin.Context) {
	var input service.BatchSoftDeleteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	results, err := h.svc.BatchSoftDelete(c.Request.Context(), input.IDs, input.Reason, GetUserID(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": results})
}

// BatchRestore POST /codes/batch-restore
func (h *CodeHandler) BatchRestore(c *gin.Context) {
	var input service.BatchRestoreInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	results, err := h.svc.BatchRestore(c.Request.Context(), input.IDs, GetUserID(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": results})
}

// CheckAvailability GET /codes/availability
func (h *CodeHandler) CheckAvailability(c *gin.Context) {
	modelType := c.Query("model_type")
	actualNumber := c.Query("actual_number")
	if modelType == "" || actualNumber == "" {
		BadRequest(c, "model_type 和 actual_number 不能为空")
		return
	}

	var clsNum *int
	if v := c.Query("classification_number"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			BadRequest(c, "classification_number 必须是整数")
			return
		}
		clsNum = &n
	}

	available, err := h.svc.CheckCodeAvailability(c.Request.Context(), modelType, clsNum, actualNumber, c.Query("extension"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"available": available})
}

// Stats GET /codes/stats
func (h *CodeHandler) Stats(c *gin.Context) {
	stats, err := h.svc.GetStats(c.Request.Context(), c.Query("model_classification_id"), c.Query("code_classification_id"))
	if err != nil {
		InternalError(c, "统计编码失败: "+err.Error())
		return
	}
	Success(c, stats)
}

// Export GET /codes/export?format=xlsx|csv
func (h *CodeHandler) Export(c *gin.Context) {
	filter := listFilterFromQuery(c)

	if c.DefaultQuery("format", "xlsx") == "csv" {
		data, filename, err := h.svc.ExportCSV(c.Request.Context(), filter)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		c.Header("Content-Type", "text/csv; charset=GBK")
		c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
		c.Writer.Write(data)
		return
	}

	f, filename, err := h.svc.ExportXLSX(c.Request.Context(), filter)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
