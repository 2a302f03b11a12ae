package handler

import (
	"github.com/bitfantasy/nimo-codes/internal/codes/service"
	"github.com/gin-gonic/gin"
)

// ============================================================
// ProductType Handler
// ============================================================

type ProductTypeHandler struct {
	svc *service.ProductTypeService
}

func NewProductTypeHandler(svc *service.ProductTypeService) *ProductTypeHandler {
	return &ProductTypeHandler{svc: svc}
}

// List GET /product-types
func (h *ProductTypeHandler) List(c *gin.Context) {
	types, err := h.svc.List(c.Request.Context())
	if err != nil {
		InternalError(c, "获取产品大类列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": types})
}

// Create POST /product-types
func (h *ProductTypeHandler) Create(c *gin.Context) {
	var input service.CreateProductTypeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	pt, err := h.svc.Create(c.Request.Context(), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, pt)
}

// Update PUT /product-types/:id
func (h *ProductTypeHandler) Update(c *gin.Context) {
	id := c.Param("id")
	var input service.UpdateProductTypeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	pt, err := h.svc.Update(c.Request.Context(), id, &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, pt)
}

// Delete DELETE /product-types/:id
func (h *ProductTypeHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id, GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// ============================================================
// Classification Handler（机型分类 + 代码分类 + 预生成）
// ============================================================

type ClassificationHandler struct {
	svc *service.ClassificationService
}

func NewClassificationHandler(svc *service.ClassificationService) *ClassificationHandler {
	return &ClassificationHandler{svc: svc}
}

// ListModels GET /model-classifications?product_type_id=xxx
func (h *ClassificationHandler) ListModels(c *gin.Context) {
	models, err := h.svc.ListModels(c.Request.Context(), c.Query("product_type_id"))
	if err != nil {
		InternalError(c, "获取机型分类列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": models})
}

// GetModel GET /model-classifications/:id
func (h *ClassificationHandler) GetModel(c *gin.Context) {
	mc, err := h.svc.GetModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, mc)
}

// CreateModel POST /model-classifications
func (h *ClassificationHandler) CreateModel(c *gin.Context) {
	var input service.CreateModelClassificationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	mc, err := h.svc.CreateModel(c.Request.Context(), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, mc)
}

// UpdateModel PUT /model-classifications/:id
func (h *ClassificationHandler) UpdateModel(c *gin.Context) {
	var input service.UpdateModelClassificationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	mc, err := h.svc.UpdateModel(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, mc)
}

// DeleteModel DELETE /model-classifications/:id
func (h *ClassificationHandler) DeleteModel(c *gin.Context) {
	if err := h.svc.DeleteModel(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// ListCodeClassifications GET /model-classifications/:id/code-classifications
func (h *ClassificationHandler) ListCodeClassifications(c *gin.Context) {
	ccs, err := h.svc.ListCodeClassifications(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取代码分类列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": ccs})
}

// CreateCodeClassification POST /model-classifications/:id/code-classifications
func (h *ClassificationHandler) CreateCodeClassification(c *gin.Context) {
	var input service.CreateCodeClassificationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	cc, result, err := h.svc.CreateCodeClassification(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, gin.H{"classification": cc, "preallocation": result})
}

// UpdateCodeClassification PUT /code-classifications/:id
func (h *ClassificationHandler) UpdateCodeClassification(c *gin.Context) {
	var input service.UpdateCodeClassificationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	cc, err := h.svc.UpdateCodeClassification(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, cc)
}

// DeleteCodeClassification DELETE /code-classifications/:id
func (h *ClassificationHandler) DeleteCodeClassification(c *gin.Context) {
	if err := h.svc.DeleteCodeClassification(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// PreAllocate POST /code-classifications/:id/preallocate
func (h *ClassificationHandler) PreAllocate(c *gin.Context) {
	result, err := h.svc.PreAllocateCodes(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}

// ListPreAllocationLogs GET /code-classifications/:id/preallocation-logs
func (h *ClassificationHandler) ListPreAllocationLogs(c *gin.Context) {
	logs, err := h.svc.ListPreAllocationLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取预生成记录失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": logs})
}
