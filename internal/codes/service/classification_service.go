package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-codes/internal/codes/entity"
	"github.com/bitfantasy/nimo-codes/internal/codes/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// preAllocateBatchSize 预生成分批插入大小，控制单条 INSERT 的体量
const preAllocateBatchSize = 500

// preAllocateLockTTL 预生成互斥锁过期时间
const preAllocateLockTTL = 30 * time.Second

// ClassificationService 机型分类/代码分类管理 + 编码预生成
type ClassificationService struct {
	classRepo *repository.ClassificationRepository
	usageRepo *repository.CodeUsageRepository
	ptRepo    *repository.ProductTypeRepository
	opLog     *repository.OperationLogRepository
	rdb       *redis.Client
	db        *gorm.DB
	rules     CodeRules
}

func NewClassificationService(
	classRepo *repository.ClassificationRepository,
	usageRepo *repository.CodeUsageRepository,
	ptRepo *repository.ProductTypeRepository,
	opLog *repository.OperationLogRepository,
	rdb *redis.Client,
	db *gorm.DB,
	rules CodeRules,
) *ClassificationService {
	return &ClassificationService{
		classRepo: classRepo,
		usageRepo: usageRepo,
		ptRepo:    ptRepo,
		opLog:     opLog,
		rdb:       rdb,
		db:        db,
		rules:     rules,
	}
}

// ========== ModelClassification ==========

func (s *ClassificationService) ListModels(ctx context.Context, productTypeID string) ([]entity.ModelClassification, error) {
	return s.classRepo.ListModelsByProductType(ctx, productTypeID)
}

func (s *ClassificationService) GetModel(ctx context.Context, id string) (*entity.ModelClassification, error) {
	mc, err := s.classRepo.FindModelByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 机型分类 %s", ErrNotFound, id)
		}
		return nil, err
	}
	return mc, nil
}

func (s *ClassificationService) CreateModel(ctx context.Context, input *CreateModelClassificationInput, createdBy string) (*entity.ModelClassification, error) {
	if _, err := s.ptRepo.FindByID(ctx, input.ProductTypeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 产品大类 %s", ErrNotFound, input.ProductTypeID)
		}
		return nil, err
	}

	exists, err := s.classRepo.ModelTypeExists(ctx, input.ModelType, "")
	if err != nil {
		return nil, fmt.Errorf("检查机型前缀失败: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: 机型前缀 %s", ErrDuplicateCode, input.ModelType)
	}

	mc := &entity.ModelClassification{
		ID:                    uuid.New().String()[:32],
		ProductTypeID:         input.ProductTypeID,
		ModelType:             input.ModelType,
		Name:                  input.Name,
		HasCodeClassification: input.HasCodeClassification,
		Description:           input.Description,
		SortOrder:             input.SortOrder,
		CreatedBy:             createdBy,
		CreatedAt:             time.Now(),
		UpdatedAt:             time.Now(),
	}
	if err := s.classRepo.CreateModel(ctx, mc); err != nil {
		return nil, fmt.Errorf("创建机型分类失败: %w", err)
	}

	s.opLog.Record(ctx, "create", "创建机型分类 "+mc.ModelType, "model_classification", mc.ID, createdBy, "")
	return mc, nil
}

func (s *ClassificationService) UpdateModel(ctx context.Context, id string, input *UpdateModelClassificationInput, actor string) (*entity.ModelClassification, error) {
	mc, err := s.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		mc.Name = *input.Name
	}
	if input.Description != nil {
		mc.Description = *input.Description
	}
	if input.SortOrder != nil {
		mc.SortOrder = *input.SortOrder
	}
	mc.UpdatedAt = time.Now()

	if err := s.classRepo.UpdateModel(ctx, mc); err != nil {
		return nil, fmt.Errorf("更新机型分类失败: %w", err)
	}

	s.opLog.Record(ctx, "update", "更新机型分类 "+mc.ModelType, "model_classification", mc.ID, actor, "")
	return mc, nil
}

// DeleteModel 删除机型分类。下挂代码分类或编码（含已删除的）时拒绝，
// 防止存量编码失去归属。
func (s *ClassificationService) DeleteModel(ctx context.Context, id string, actor string) error {
	mc, err := s.GetModel(ctx, id)
	if err != nil {
		return err
	}

	ccs, err := s.classRepo.ListCodesByModel(ctx, id)
	if err != nil {
		return fmt.Errorf("查询代码分类失败: %w", err)
	}
	if len(ccs) > 0 {
		return fmt.Errorf("%w: 机型下存在代码分类", ErrClassificationInUse)
	}

	var usages int64
	if err := s.db.WithContext(ctx).Model(&entity.CodeUsage{}).
		Where("model_classification_id = ?", id).Count(&usages).Error; err != nil {
		return fmt.Errorf("统计机型编码失败: %w", err)
	}
	if usages > 0 {
		return fmt.Errorf("%w: 机型下存在编码", ErrClassificationInUse)
	}

	if err := s.classRepo.DeleteModel(ctx, id); err != nil {
		return fmt.Errorf("删除机型分类失败: %w", err)
	}

	s.opLog.Record(ctx, "delete", "删除机型分类 "+mc.ModelType, "model_classification", id, actor, "")
	return nil
}

// ========== CodeClassification ==========

func (s *ClassificationService) ListCodeClassifications(ctx context.Context, modelClassificationID string) ([]entity.CodeClassification, error) {
	return s.classRepo.ListCodesByModel(ctx, modelClassificationID)
}

// PreAllocationResult 一次预生成批次的结果
type PreAllocationResult struct {
	GeneratedCount int    `json:"generated_count"`
	SkippedCount   int    `json:"skipped_count"`
	FirstCode      string `json:"first_code"`
	LastCode       string `json:"last_code"`
}

// CreateCodeClassification 创建代码分类。父机型分类启用三级结构时，
// 在同一事务内完成预生成；预生成失败则整体回滚。
func (s *ClassificationService) CreateCodeClassification(ctx context.Context, modelClassificationID string, input *CreateCodeClassificationInput, createdBy string) (*entity.CodeClassification, *PreAllocationResult, error) {
	parent, err := s.GetModel(ctx, modelClassificationID)
	if err != nil {
		return nil, nil, err
	}

	exists, err := s.classRepo.CodeExistsInModel(ctx, modelClassificationID, input.Code, "")
	if err != nil {
		return nil, nil, fmt.Errorf("检查分类编号失败: %w", err)
	}
	if exists {
		return nil, nil, fmt.Errorf("%w: 分类编号 %s", ErrDuplicateCode, input.Code)
	}

	// 预生成前先保证编号可解析，避免建了分类才发现生成不了
	if parent.HasCodeClassification {
		if _, ok := ExtractNumberFromCode(input.Code); !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrCodeNotExtractable, input.Code)
		}
	}

	cc := &entity.CodeClassification{
		ID:                    uuid.New().String()[:32],
		ModelClassificationID: modelClassificationID,
		Code:                  input.Code,
		Name:                  input.Name,
		SortOrder:             input.SortOrder,
		CreatedBy:             createdBy,
		CreatedAt:             time.Now(),
		UpdatedAt:             time.Now(),
	}

	var result *PreAllocationResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cc).Error; err != nil {
			return fmt.Errorf("创建代码分类失败: %w", err)
		}
		if parent.HasCodeClassification {
			r, err := s.preAllocate(ctx, tx, parent, cc, createdBy)
			if err != nil {
				return err
			}
			result = r
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.opLog.Record(ctx, "create", "创建代码分类 "+cc.Code, "code_classification", cc.ID, createdBy, "")
	return cc, result, nil
}

// UpdateCodeClassification 更新代码分类。已有编码的分类不允许变更前导编号，
// 否则存量编码的分类编号会和新编号脱节。
func (s *ClassificationService) UpdateCodeClassification(ctx context.Context, id string, input *UpdateCodeClassificationInput, actor string) (*entity.CodeClassification, error) {
	cc, err := s.classRepo.FindCodeByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 代码分类 %s", ErrNotFound, id)
		}
		return nil, err
	}

	if input.Code != nil && *input.Code != cc.Code {
		exists, err := s.classRepo.CodeExistsInModel(ctx, cc.ModelClassificationID, *input.Code, id)
		if err != nil {
			return nil, fmt.Errorf("检查分类编号失败: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: 分类编号 %s", ErrDuplicateCode, *input.Code)
		}

		oldNum, _ := ExtractNumberFromCode(cc.Code)
		newNum, ok := ExtractNumberFromCode(*input.Code)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCodeNotExtractable, *input.Code)
		}
		if newNum != oldNum {
			stats, err := s.usageRepo.Stats(ctx, "", id)
			if err != nil {
				return nil, fmt.Errorf("统计分类编码失败: %w", err)
			}
			if stats.Total > 0 {
				return nil, fmt.Errorf("%w: 分类下已有编码，不能变更前导编号", ErrClassificationInUse)
			}
		}
		cc.Code = *input.Code
	}
	if input.Name != nil {
		cc.Name = *input.Name
	}
	if input.SortOrder != nil {
		cc.SortOrder = *input.SortOrder
	}
	cc.UpdatedAt = time.Now()

	if err := s.classRepo.UpdateCode(ctx, cc); err != nil {
		return nil, fmt.Errorf("更新代码分类失败: %w", err)
	}

	s.opLog.Record(ctx, "update", "更新代码分类 "+cc.Code, "code_classification", cc.ID, actor, "")
	return cc, nil
}

// DeleteCodeClassification 删除代码分类。存在已占用编码时拒绝；
// 否则在一个事务里先清掉从未占用的预生成行，再删除分类本身。
func (s *ClassificationService) DeleteCodeClassification(ctx context.Context, id string, actor string) error {
	cc, err := s.classRepo.FindCodeByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: 代码分类 %s", ErrNotFound, id)
		}
		return err
	}

	allocated, err := s.usageRepo.CountAllocatedInClassification(ctx, id)
	if err != nil {
		return fmt.Errorf("统计已占用编码失败: %w", err)
	}
	if allocated > 0 {
		return fmt.Errorf("%w: 仍有 %d 条已占用编码", ErrClassificationInUse, allocated)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code_classification_id = ? AND is_allocated = false", id).
			Delete(&entity.CodeUsage{}).Error; err != nil {
			return fmt.Errorf("清理预生成编码失败: %w", err)
		}
		if err := tx.Delete(&entity.CodeClassification{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("删除代码分类失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.opLog.Record(ctx, "delete", "删除代码分类 "+cc.Code, "code_classification", id, actor, "")
	return nil
}

// ========== 预生成 ==========

// PreAllocateCodes 手动重触发预生成，用于恢复/补齐。与自动触发同一算法，
// 可重复执行：已存在的编码被跳过并计数。redis 锁防止并发双触发。
func (s *ClassificationService) PreAllocateCodes(ctx context.Context, codeClassificationID string, actor string) (*PreAllocationResult, error) {
	cc, err := s.classRepo.FindCodeByID(ctx, codeClassificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 代码分类 %s", ErrNotFound, codeClassificationID)
		}
		return nil, err
	}

	parent, err := s.GetModel(ctx, cc.ModelClassificationID)
	if err != nil {
		return nil, err
	}
	if !parent.HasCodeClassification {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStructure, parent.ModelType)
	}

	if s.rdb != nil {
		lockKey := "codegen:lock:" + codeClassificationID
		ok, err := s.rdb.SetNX(ctx, lockKey, actor, preAllocateLockTTL).Result()
		if err == nil && !ok {
			return nil, fmt.Errorf("%w: %s", ErrGenerationBusy, cc.Code)
		}
		// redis 不可用时放弃互斥，退回数据库层的跳过逻辑
		if err == nil {
			defer s.rdb.Del(context.WithoutCancel(ctx), lockKey)
		}
	}

	var result *PreAllocationResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.preAllocate(ctx, tx, parent, cc, actor)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.opLog.Record(ctx, "preallocate",
		fmt.Sprintf("预生成编码 %s ~ %s，新增 %d 条，跳过 %d 条", result.FirstCode, result.LastCode, result.GeneratedCount, result.SkippedCount),
		"code_classification", codeClassificationID, actor, "")
	return result, nil
}

// preAllocate 在事务内生成 [0, 10^D) 的全部候选编码和批次记录。
// 和已有未删除编码冲突的候选被跳过并计数，批次整体不因此失败。
func (s *ClassificationService) preAllocate(ctx context.Context, tx *gorm.DB, mc *entity.ModelClassification, cc *entity.CodeClassification, actor string) (*PreAllocationResult, error) {
	num, ok := ExtractNumberFromCode(cc.Code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCodeNotExtractable, cc.Code)
	}

	total := s.rules.Space()
	candidates := make([]string, total)
	for i := 0; i < total; i++ {
		candidates[i] = ComposeModel(mc.ModelType, &num, s.rules.PadNumber(i), "")
	}

	// 编码唯一性是全局的，前缀可重叠的机型（如 SLU- 配 10 号分类、SLU-1 配 0 号分类）
	// 会拼出相同的完整编码，查重必须按候选编码本身查，不能按机型过滤
	taken := make(map[string]bool)
	for start := 0; start < total; start += preAllocateBatchSize {
		end := start + preAllocateBatchSize
		if end > total {
			end = total
		}
		var existing []string
		if err := tx.Model(&entity.CodeUsage{}).
			Where("model IN ? AND is_deleted = false", candidates[start:end]).
			Pluck("model", &existing).Error; err != nil {
			return nil, fmt.Errorf("查询存量编码失败: %w", err)
		}
		for _, m := range existing {
			taken[m] = true
		}
	}

	now := time.Now()
	entries := make([]entity.CodeUsage, 0, total)
	skipped := 0
	for i, model := range candidates {
		actualNumber := s.rules.PadNumber(i)
		if taken[model] {
			skipped++
			continue
		}
		ccID := cc.ID
		clsNum := num
		entries = append(entries, entity.CodeUsage{
			ID:                    uuid.New().String()[:32],
			ModelClassificationID: mc.ID,
			CodeClassificationID:  &ccID,
			Model:                 model,
			ModelType:             mc.ModelType,
			ClassificationNumber:  &clsNum,
			ActualNumber:          actualNumber,
			NumberDigits:          s.rules.NumberDigits,
			CreatedBy:             actor,
			CreatedAt:             now,
			UpdatedAt:             now,
		})
	}

	if len(entries) > 0 {
		if err := tx.CreateInBatches(&entries, preAllocateBatchSize).Error; err != nil {
			return nil, fmt.Errorf("批量写入编码失败: %w", err)
		}
	}

	result := &PreAllocationResult{
		GeneratedCount: len(entries),
		SkippedCount:   skipped,
		FirstCode:      ComposeModel(mc.ModelType, &num, s.rules.PadNumber(0), ""),
		LastCode:       ComposeModel(mc.ModelType, &num, s.rules.PadNumber(total-1), ""),
	}

	batchLog := &entity.CodePreAllocationLog{
		ID:                    uuid.New().String()[:32],
		ModelClassificationID: mc.ID,
		CodeClassificationID:  cc.ID,
		GeneratedCount:        result.GeneratedCount,
		SkippedCount:          result.SkippedCount,
		FirstCode:             result.FirstCode,
		LastCode:              result.LastCode,
		NumberDigits:          s.rules.NumberDigits,
		CreatedBy:             actor,
		CreatedAt:             now,
	}
	if err := tx.Create(batchLog).Error; err != nil {
		return nil, fmt.Errorf("写入预生成记录失败: %w", err)
	}

	return result, nil
}

// ListPreAllocationLogs 查询代码分类的预生成批次记录
func (s *ClassificationService) ListPreAllocationLogs(ctx context.Context, codeClassificationID string) ([]entity.CodePreAllocationLog, error) {
	return s.classRepo.ListPreAllocationLogs(ctx, codeClassificationID)
}

// ========== Input DTOs ==========

type CreateModelClassificationInput struct {
	ProductTypeID         string `json:"product_type_id" binding:"required"`
	ModelType             string `json:"model_type" binding:"required"`
	Name                  string `json:"name" binding:"required"`
	HasCodeClassification bool   `json:"has_code_classification"`
	Description           string `json:"description"`
	SortOrder             int    `json:"sort_order"`
}

type UpdateModelClassificationInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	SortOrder   *int    `json:"sort_order"`
}

type CreateCodeClassificationInput struct {
	Code      string `json:"code" binding:"required"`
	Name      string `json:"name" binding:"required"`
	SortOrder int    `json:"sort_order"`
}

type UpdateCodeClassificationInput struct {
	Code      *string `json:"code"`
	Name      *string `json:"name"`
	SortOrder *int    `json:"sort_order"`
}
