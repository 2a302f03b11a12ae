package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-codes/internal/codes/entity"
	"github.com/bitfantasy/nimo-codes/internal/codes/repository"
	"github.com/bitfantasy/nimo-codes/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 业务错误。handler 层用 errors.Is 翻译成 HTTP 状态码。
var (
	ErrNotFound             = errors.New("记录不存在")
	ErrDuplicateCode        = errors.New("编码已存在")
	ErrAlreadyAllocated     = errors.New("编码已被占用")
	ErrNotAllocated         = errors.New("编码未被占用")
	ErrNotDeleted           = errors.New("编码未被删除")
	ErrInvalidExtension     = errors.New("延伸码不符合规则")
	ErrInvalidNumber        = errors.New("流水号格式错误")
	ErrClassificationInUse  = errors.New("代码分类下存在已占用编码")
	ErrUnsupportedStructure = errors.New("该机型分类未启用代码分类")
	ErrCodeNotExtractable   = errors.New("代码分类编号无法解析")
	ErrGenerationBusy       = errors.New("预生成任务进行中")
)

// Services 服务集合
type Services struct {
	ProductType    *ProductTypeService
	Classification *ClassificationService
	Allocation     *AllocationService
	OperationLog   *OperationLogService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, db *gorm.DB, cfg *config.Config) *Services {
	rules := RulesFromConfig(cfg.Code)
	return &Services{
		ProductType:    NewProductTypeService(repos.ProductType, repos.OperationLog),
		Classification: NewClassificationService(repos.Classification, repos.CodeUsage, repos.ProductType, repos.OperationLog, rdb, db, rules),
		Allocation:     NewAllocationService(repos.CodeUsage, repos.Classification, repos.OperationLog, rules),
		OperationLog:   NewOperationLogService(repos.OperationLog),
	}
}

// OperationLogService 操作日志查询
type OperationLogService struct {
	repo *repository.OperationLogRepository
}

func NewOperationLogService(repo *repository.OperationLogRepository) *OperationLogService {
	return &OperationLogService{repo: repo}
}

func (s *OperationLogService) ListByEntity(ctx context.Context, entityType, entityID string, page, pageSize int) ([]entity.OperationLog, int64, error) {
	return s.repo.FindByEntity(ctx, entityType, entityID, page, pageSize)
}

// ProductTypeService 产品大类服务
type ProductTypeService struct {
	repo  *repository.ProductTypeRepository
	opLog *repository.OperationLogRepository
}

func NewProductTypeService(repo *repository.ProductTypeRepository, opLog *repository.OperationLogRepository) *ProductTypeService {
	return &ProductTypeService{repo: repo, opLog: opLog}
}

func (s *ProductTypeService) List(ctx context.Context) ([]entity.ProductType, error) {
	return s.repo.ListAll(ctx)
}

func (s *ProductTypeService) Get(ctx context.Context, id string) (*entity.ProductType, error) {
	pt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 产品大类 %s", ErrNotFound, id)
		}
		return nil, err
	}
	return pt, nil
}

func (s *ProductTypeService) Create(ctx context.Context, input *CreateProductTypeInput, createdBy string) (*entity.ProductType, error) {
	exists, err := s.repo.ExistsByCode(ctx, input.Code, "")
	if err != nil {
		return nil, fmt.Errorf("检查大类编码失败: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: 大类编码 %s", ErrDuplicateCode, input.Code)
	}

	pt := &entity.ProductType{
		ID:        uuid.New().String()[:32],
		Code:      input.Code,
		Name:      input.Name,
		SortOrder: input.SortOrder,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, pt); err != nil {
		return nil, fmt.Errorf("创建产品大类失败: %w", err)
	}

	s.opLog.Record(ctx, "create", "创建产品大类 "+pt.Code, "product_type", pt.ID, createdBy, "")
	return pt, nil
}

func (s *ProductTypeService) Update(ctx context.Context, id string, input *UpdateProductTypeInput, actor string) (*entity.ProductType, error) {
	pt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Code != nil && *input.Code != pt.Code {
		exists, err := s.repo.ExistsByCode(ctx, *input.Code, id)
		if err != nil {
			return nil, fmt.Errorf("检查大类编码失败: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: 大类编码 %s", ErrDuplicateCode, *input.Code)
		}
		pt.Code = *input.Code
	}
	if input.Name != nil {
		pt.Name = *input.Name
	}
	if input.SortOrder != nil {
		pt.SortOrder = *input.SortOrder
	}
	pt.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, pt); err != nil {
		return nil, fmt.Errorf("更新产品大类失败: %w", err)
	}

	s.opLog.Record(ctx, "update", "更新产品大类 "+pt.Code, "product_type", pt.ID, actor, "")
	return pt, nil
}

func (s *ProductTypeService) Delete(ctx context.Context, id string, actor string) error {
	pt, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	children, err := s.repo.CountChildren(ctx, id)
	if err != nil {
		return fmt.Errorf("检查下级机型分类失败: %w", err)
	}
	if children > 0 {
		return fmt.Errorf("%w: 大类下存在机型分类", ErrClassificationInUse)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("删除产品大类失败: %w", err)
	}

	s.opLog.Record(ctx, "delete", "删除产品大类 "+pt.Code, "product_type", id, actor, "")
	return nil
}

// ========== Input DTOs ==========

type CreateProductTypeInput struct {
	Code      string `json:"code" binding:"required"`
	Name      string `json:"name" binding:"required"`
	SortOrder int    `json:"sort_order"`
}

type UpdateProductTypeInput struct {
	Code      *string `json:"code"`
	Name      *string `json:"name"`
	SortOrder *int    `json:"sort_order"`
}
