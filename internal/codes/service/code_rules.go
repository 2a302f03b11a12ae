package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bitfantasy/nimo-codes/internal/config"
)

// CodeRules 编码规则，由配置派生，服务内只读
type CodeRules struct {
	NumberDigits           int
	ExtensionMaxLength     int
	ExtensionExcludedChars string
}

func RulesFromConfig(cfg config.CodeConfig) CodeRules {
	return CodeRules{
		NumberDigits:           cfg.NumberDigits,
		ExtensionMaxLength:     cfg.ExtensionMaxLength,
		ExtensionExcludedChars: cfg.ExtensionExcludedChars,
	}
}

// Space 流水号空间大小，即 10^NumberDigits
func (r CodeRules) Space() int {
	total := 1
	for i := 0; i < r.NumberDigits; i++ {
		total *= 10
	}
	return total
}

// PadNumber 将整数补零到配置位数
func (r CodeRules) PadNumber(n int) string {
	return fmt.Sprintf("%0*d", r.NumberDigits, n)
}

// ValidateExtension 校验延伸码长度和禁用字符
func (r CodeRules) ValidateExtension(ext string) error {
	if ext == "" {
		return nil
	}
	if len(ext) > r.ExtensionMaxLength {
		return fmt.Errorf("%w: 长度超过 %d", ErrInvalidExtension, r.ExtensionMaxLength)
	}
	if i := strings.IndexAny(ext, r.ExtensionExcludedChars); i >= 0 {
		return fmt.Errorf("%w: 含禁用字符 %q", ErrInvalidExtension, ext[i])
	}
	return nil
}

// ValidateNumberPart 校验人工输入的流水号：定长、纯数字
func (r CodeRules) ValidateNumberPart(number string) error {
	if len(number) != r.NumberDigits {
		return fmt.Errorf("%w: 需要 %d 位数字", ErrInvalidNumber, r.NumberDigits)
	}
	for _, c := range number {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: %q 不是数字", ErrInvalidNumber, c)
		}
	}
	return nil
}

// ComposeModel 拼装完整编码：机型前缀 + 分类编号（可选）+ 流水号 + 延伸码（可选）
func ComposeModel(modelType string, classificationNumber *int, actualNumber, extension string) string {
	var b strings.Builder
	b.WriteString(modelType)
	if classificationNumber != nil {
		b.WriteString(strconv.Itoa(*classificationNumber))
	}
	b.WriteString(actualNumber)
	b.WriteString(extension)
	return b.String()
}

// ExtractNumberFromCode 从代码分类的 "<编号>-<名称>" 中取出前导编号。
// 第二个返回值表示是否解析成功，不用哨兵值，0 是合法编号。
func ExtractNumberFromCode(code string) (int, bool) {
	head, _, found := strings.Cut(code, "-")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
