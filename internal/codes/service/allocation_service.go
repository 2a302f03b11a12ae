package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-codes/internal/codes/entity"
	"github.com/bitfantasy/nimo-codes/internal/codes/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 人工建码结果，第三种情形是返回错误
const (
	ManualOutcomeCreated = "created"
	ManualOutcomeUpdated = "updated"
)

// AllocationService 编码状态机：可用 → 占用 → 删除 → 恢复
type AllocationService struct {
	usageRepo *repository.CodeUsageRepository
	classRepo *repository.ClassificationRepository
	opLog     *repository.OperationLogRepository
	rules     CodeRules
}

func NewAllocationService(
	usageRepo *repository.CodeUsageRepository,
	classRepo *repository.ClassificationRepository,
	opLog *repository.OperationLogRepository,
	rules CodeRules,
) *AllocationService {
	return &AllocationService{
		usageRepo: usageRepo,
		classRepo: classRepo,
		opLog:     opLog,
		rules:     rules,
	}
}

func (s *AllocationService) Get(ctx context.Context, id string) (*entity.CodeUsage, error) {
	usage, err := s.usageRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 编码 %s", ErrNotFound, id)
		}
		return nil, err
	}
	return usage, nil
}

func (s *AllocationService) List(ctx context.Context, filter repository.ListFilter, page, pageSize int) ([]entity.CodeUsage, int64, error) {
	return s.usageRepo.List(ctx, filter, page, pageSize)
}

// AllocateCode 占用一条预生成编码。只允许从「未占用、未删除」状态转移；
// 状态检查通过条件更新做 CAS，两个并发请求只有一个能成功。
func (s *AllocationService) AllocateCode(ctx context.Context, entryID string, input *AllocateCodeInput, actor string) (*entity.CodeUsage, error) {
	usage, err := s.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if usage.IsDeleted || usage.IsAllocated {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAllocated, usage.Model)
	}

	if err := s.rules.ValidateExtension(input.Extension); err != nil {
		return nil, err
	}

	newModel := ComposeModel(usage.ModelType, usage.ClassificationNumber, usage.ActualNumber, input.Extension)
	if newModel != usage.Model {
		exists, err := s.usageRepo.ModelExists(ctx, newModel, entryID)
		if err != nil {
			return nil, fmt.Errorf("检查编码占用失败: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, newModel)
		}
	}

	updates := map[string]interface{}{
		"model":          newModel,
		"extension":      input.Extension,
		"is_allocated":   true,
		"occupancy_type": input.OccupancyType,
		"product_name":   input.ProductName,
		"description":    input.Description,
		"customer":       input.Customer,
		"factory":        input.Factory,
		"builder":        input.Builder,
		"requester":      input.Requester,
		"updated_at":     time.Now(),
	}
	rows, err := s.usageRepo.Claim(ctx, entryID, updates)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, newModel)
		}
		return nil, fmt.Errorf("占用编码失败: %w", err)
	}
	if rows == 0 {
		// 读到的快照已过期，说明有人抢先占用或删除了这条编码
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAllocated, usage.Model)
	}

	allocated, err := s.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	s.opLog.Record(ctx, "allocate", "占用编码 "+allocated.Model, "code_usage", entryID, actor, "")
	return allocated, nil
}

// ManualCodeResult 人工建码结果，Outcome 区分新建与已有编码的覆盖更新
type ManualCodeResult struct {
	Entry   *entity.CodeUsage `json:"entry"`
	Outcome string            `json:"outcome"`
}

// CreateManualCode 人工创建编码，主要服务二级结构。若完整编码已被未删除条目
// 占用则转为更新该条目的可编辑信息（重复提交已知编码等于编辑，不报错）。
func (s *AllocationService) CreateManualCode(ctx context.Context, modelClassificationID string, input *CreateManualCodeInput, actor string) (*ManualCodeResult, error) {
	mc, err := s.classRepo.FindModelByID(ctx, modelClassificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 机型分类 %s", ErrNotFound, modelClassificationID)
		}
		return nil, err
	}

	if err := s.rules.ValidateNumberPart(input.NumberPart); err != nil {
		return nil, err
	}
	if err := s.rules.ValidateExtension(input.Extension); err != nil {
		return nil, err
	}

	model := ComposeModel(mc.ModelType, nil, input.NumberPart, input.Extension)

	existing, err := s.usageRepo.FindActiveByModel(ctx, model)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("查询编码失败: %w", err)
	}

	if existing != nil {
		existing.OccupancyType = input.OccupancyType
		existing.ProductName = input.ProductName
		existing.Description = input.Description
		existing.Customer = input.Customer
		existing.Factory = input.Factory
		existing.Builder = input.Builder
		existing.Requester = input.Requester
		existing.UpdatedAt = time.Now()
		if err := s.usageRepo.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("更新编码失败: %w", err)
		}
		s.opLog.Record(ctx, "update", "覆盖更新编码 "+existing.Model, "code_usage", existing.ID, actor, "")
		return &ManualCodeResult{Entry: existing, Outcome: ManualOutcomeUpdated}, nil
	}

	usage := &entity.CodeUsage{
		ID:                    uuid.New().String()[:32],
		ModelClassificationID: modelClassificationID,
		Model:                 model,
		ModelType:             mc.ModelType,
		ActualNumber:          input.NumberPart,
		Extension:             input.Extension,
		IsAllocated:           true,
		OccupancyType:         input.OccupancyType,
		ProductName:           input.ProductName,
		Description:           input.Description,
		Customer:              input.Customer,
		Factory:               input.Factory,
		Builder:               input.Builder,
		Requester:             input.Requester,
		NumberDigits:          s.rules.NumberDigits,
		CreatedBy:             actor,
		CreatedAt:             time.Now(),
		UpdatedAt:             time.Now(),
	}
	if err := s.usageRepo.Create(ctx, usage); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, model)
		}
		return nil, fmt.Errorf("创建编码失败: %w", err)
	}

	s.opLog.Record(ctx, "create", "人工创建编码 "+model, "code_usage", usage.ID, actor, "")
	return &ManualCodeResult{Entry: usage, Outcome: ManualOutcomeCreated}, nil
}

// UpdateEntry 更新已占用编码。延伸码变化时重新校验并检查新完整编码的占用。
// 未占用的预生成条目没有可编辑内容，走占用流程而不是编辑流程。
func (s *AllocationService) UpdateEntry(ctx context.Context, id string, input *UpdateEntryInput, actor string) (*entity.CodeUsage, error) {
	usage, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if usage.IsDeleted {
		return nil, fmt.Errorf("%w: 编码 %s 已删除", ErrNotFound, usage.Model)
	}
	if !usage.IsAllocated {
		return nil, fmt.Errorf("%w: %s", ErrNotAllocated, usage.Model)
	}

	if input.Extension != nil && *input.Extension != usage.Extension {
		if err := s.rules.ValidateExtension(*input.Extension); err != nil {
			return nil, err
		}
		newModel := ComposeModel(usage.ModelType, usage.ClassificationNumber, usage.ActualNumber, *input.Extension)
		exists, err := s.usageRepo.ModelExists(ctx, newModel, id)
		if err != nil {
			return nil, fmt.Errorf("检查编码占用失败: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, newModel)
		}
		usage.Extension = *input.Extension
		usage.Model = newModel
	}

	if input.OccupancyType != nil {
		usage.OccupancyType = *input.OccupancyType
	}
	if input.ProductName != nil {
		usage.ProductName = *input.ProductName
	}
	if input.Description != nil {
		usage.Description = *input.Description
	}
	if input.Customer != nil {
		usage.Customer = *input.Customer
	}
	if input.Factory != nil {
		usage.Factory = *input.Factory
	}
	if input.Builder != nil {
		usage.Builder = *input.Builder
	}
	if input.Requester != nil {
		usage.Requester = *input.Requester
	}
	usage.UpdatedAt = time.Now()

	if err := s.usageRepo.Update(ctx, usage); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, usage.Model)
		}
		return nil, fmt.Errorf("更新编码失败: %w", err)
	}

	s.opLog.Record(ctx, "update", "更新编码 "+usage.Model, "code_usage", id, actor, "")
	return usage, nil
}

// SoftDelete 逻辑删除。保留占用状态，恢复时可回到删除前的样子。
func (s *AllocationService) SoftDelete(ctx context.Context, id string, reason string, actor string) error {
	usage, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if usage.IsDeleted {
		return fmt.Errorf("%w: 编码 %s 已删除", ErrNotFound, usage.Model)
	}

	usage.IsDeleted = true
	usage.DeletedReason = &reason
	usage.UpdatedAt = time.Now()
	if err := s.usageRepo.Update(ctx, usage); err != nil {
		return fmt.Errorf("删除编码失败: %w", err)
	}

	s.opLog.Record(ctx, "delete", "删除编码 "+usage.Model+"，原因: "+reason, "code_usage", id, actor, "")
	return nil
}

// Restore 恢复被逻辑删除的编码。占用状态不受影响。
func (s *AllocationService) Restore(ctx context.Context, id string, actor string) (*entity.CodeUsage, error) {
	usage, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !usage.IsDeleted {
		return nil, fmt.Errorf("%w: %s", ErrNotDeleted, usage.Model)
	}

	// 删除期间同一编码可能被重新发出去了
	exists, err := s.usageRepo.ModelExists(ctx, usage.Model, id)
	if err != nil {
		return nil, fmt.Errorf("检查编码占用失败: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, usage.Model)
	}

	usage.IsDeleted = false
	usage.DeletedReason = nil
	usage.UpdatedAt = time.Now()
	if err := s.usageRepo.Update(ctx, usage); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, usage.Model)
		}
		return nil, fmt.Errorf("恢复编码失败: %w", err)
	}

	s.opLog.Record(ctx, "restore", "恢复编码 "+usage.Model, "code_usage", id, actor, "")
	return usage, nil
}

// BatchItemResult 批量操作的单条结果
type BatchItemResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BatchSoftDelete 批量删除。单条失败只记入结果，不中断整批。
func (s *AllocationService) BatchSoftDelete(ctx context.Context, ids []string, reason string, actor string) ([]BatchItemResult, error) {
	results := make([]BatchItemResult, 0, len(ids))
	err := s.usageRepo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, id := range ids {
			res := tx.Model(&entity.CodeUsage{}).
				Where("id = ? AND is_deleted = false", id).
				Updates(map[string]interface{}{
					"is_deleted":     true,
					"deleted_reason": reason,
					"updated_at":     now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				results = append(results, BatchItemResult{ID: id, Error: ErrNotFound.Error()})
				continue
			}
			results = append(results, BatchItemResult{ID: id, OK: true})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("批量删除失败: %w", err)
	}

	s.opLog.Record(ctx, "batch_delete", fmt.Sprintf("批量删除 %d 条编码，原因: %s", len(ids), reason), "code_usage", "", actor, "")
	return results, nil
}

// BatchRestore 批量恢复。单条失败只记入结果，不中断整批。
// 唯一索引冲突会让整个事务进入中止态，连累后面的条目，
// 所以和单条恢复一样先查占用，不能指望索引报错后逐条兜住。
func (s *AllocationService) BatchRestore(ctx context.Context, ids []string, actor string) ([]BatchItemResult, error) {
	results := make([]BatchItemResult, 0, len(ids))
	err := s.usageRepo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, id := range ids {
			var usage entity.CodeUsage
			if err := tx.First(&usage, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					results = append(results, BatchItemResult{ID: id, Error: ErrNotFound.Error()})
					continue
				}
				return err
			}
			if !usage.IsDeleted {
				results = append(results, BatchItemResult{ID: id, Error: ErrNotDeleted.Error()})
				continue
			}

			var occupied int64
			if err := tx.Model(&entity.CodeUsage{}).
				Where("model = ? AND is_deleted = false AND id <> ?", usage.Model, id).
				Count(&occupied).Error; err != nil {
				return err
			}
			if occupied > 0 {
				results = append(results, BatchItemResult{ID: id, Error: ErrDuplicateCode.Error()})
				continue
			}

			res := tx.Model(&entity.CodeUsage{}).
				Where("id = ? AND is_deleted = true", id).
				Updates(map[string]interface{}{
					"is_deleted":     false,
					"deleted_reason": nil,
					"updated_at":     now,
				})
			if res.Error != nil {
				return res.Error
			}
			results = append(results, BatchItemResult{ID: id, OK: true})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("批量恢复失败: %w", err)
	}

	s.opLog.Record(ctx, "batch_restore", fmt.Sprintf("批量恢复 %d 条编码", len(ids)), "code_usage", "", actor, "")
	return results, nil
}

// CheckCodeAvailability 检查一条候选编码是否可用（未被未删除条目占用）
func (s *AllocationService) CheckCodeAvailability(ctx context.Context, modelType string, classificationNumber *int, actualNumber, extension string) (bool, error) {
	model := ComposeModel(modelType, classificationNumber, actualNumber, extension)
	exists, err := s.usageRepo.ModelExists(ctx, model, "")
	if err != nil {
		return false, fmt.Errorf("检查编码占用失败: %w", err)
	}
	return !exists, nil
}

// GetStats 按机型分类或代码分类统计编码占用情况
func (s *AllocationService) GetStats(ctx context.Context, modelClassificationID, codeClassificationID string) (*repository.CodeStats, error) {
	return s.usageRepo.Stats(ctx, modelClassificationID, codeClassificationID)
}

// ========== Input DTOs ==========

type AllocateCodeInput struct {
	Extension     string `json:"extension"`
	OccupancyType string `json:"occupancy_type" binding:"omitempty,oneof=planning work_order pause"`
	ProductName   string `json:"product_name"`
	Description   string `json:"description"`
	Customer      string `json:"customer"`
	Factory       string `json:"factory"`
	Builder       string `json:"builder"`
	Requester     string `json:"requester"`
}

type CreateManualCodeInput struct {
	NumberPart    string `json:"number_part" binding:"required"`
	Extension     string `json:"extension"`
	OccupancyType string `json:"occupancy_type" binding:"omitempty,oneof=planning work_order pause"`
	ProductName   string `json:"product_name"`
	Description   string `json:"description"`
	Customer      string `json:"customer"`
	Factory       string `json:"factory"`
	Builder       string `json:"builder"`
	Requester     string `json:"requester"`
}

type SoftDeleteInput struct {
	Reason string `json:"reason"`
}

type BatchSoftDeleteInput struct {
	IDs    []string `json:"ids" binding:"required,min=1"`
	Reason string   `json:"reason"`
}

type BatchRestoreInput struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type UpdateEntryInput struct {
	Extension     *string `json:"extension"`
	OccupancyType *string `json:"occupancy_type"`
	ProductName   *string `json:"product_name"`
	Description   *string `json:"description"`
	Customer      *string `json:"customer"`
	Factory       *string `json:"factory"`
	Builder       *string `json:"builder"`
	Requester     *string `json:"requester"`
}
