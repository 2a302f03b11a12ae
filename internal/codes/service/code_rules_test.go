package service

import (
	"errors"
	"testing"
)

func testRules() CodeRules {
	return CodeRules{
		NumberDigits:           2,
		ExtensionMaxLength:     8,
		ExtensionExcludedChars: "IO",
	}
}

func TestCodeRulesSpace(t *testing.T) {
	cases := []struct {
		digits int
		want   int
	}{
		{1, 10},
		{2, 100},
		{3, 1000},
	}
	for _, c := range cases {
		r := CodeRules{NumberDigits: c.digits}
		if got := r.Space(); got != c.want {
			t.Errorf("Space() with %d digits = %d, want %d", c.digits, got, c.want)
		}
	}
}

func TestCodeRulesPadNumber(t *testing.T) {
	r := testRules()
	cases := []struct {
		n    int
		want string
	}{
		{0, "00"},
		{7, "07"},
		{42, "42"},
	}
	for _, c := range cases {
		if got := r.PadNumber(c.n); got != c.want {
			t.Errorf("PadNumber(%d) = %q, want %q", c.n, got, c.want)
		}
	}
}

func TestValidateExtension(t *testing.T) {
	r := testRules()

	if err := r.ValidateExtension(""); err != nil {
		t.Errorf("empty extension should be valid, got %v", err)
	}
	if err := r.ValidateExtension("B"); err != nil {
		t.Errorf("extension B should be valid, got %v", err)
	}
	if err := r.ValidateExtension("ABCDEFGHJ"); !errors.Is(err, ErrInvalidExtension) {
		t.Errorf("over-length extension should fail, got %v", err)
	}
	// I 和 O 是禁用字符
	if err := r.ValidateExtension("IN"); !errors.Is(err, ErrInvalidExtension) {
		t.Errorf("extension containing I should fail, got %v", err)
	}
	if err := r.ValidateExtension("XO"); !errors.Is(err, ErrInvalidExtension) {
		t.Errorf("extension containing O should fail, got %v", err)
	}
}

func TestValidateNumberPart(t *testing.T) {
	r := testRules()

	if err := r.ValidateNumberPart("05"); err != nil {
		t.Errorf("05 should be valid, got %v", err)
	}
	if err := r.ValidateNumberPart("5"); !errors.Is(err, ErrInvalidNumber) {
		t.Errorf("too-short number should fail, got %v", err)
	}
	if err := r.ValidateNumberPart("123"); !errors.Is(err, ErrInvalidNumber) {
		t.Errorf("too-long number should fail, got %v", err)
	}
	if err := r.ValidateNumberPart("a5"); !errors.Is(err, ErrInvalidNumber) {
		t.Errorf("non-digit number should fail, got %v", err)
	}
}

func TestComposeModel(t *testing.T) {
	one := 1

	cases := []struct {
		name      string
		modelType string
		clsNum    *int
		number    string
		extension string
		want      string
	}{
		{"三级结构", "SLU-", &one, "50", "", "SLU-150"},
		{"三级结构带延伸码", "SLU-", &one, "50", "B", "SLU-150B"},
		{"二级结构", "ODM-", nil, "07", "", "ODM-07"},
		{"二级结构带延伸码", "ODM-", nil, "07", "A2", "ODM-07A2"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ComposeModel(c.modelType, c.clsNum, c.number, c.extension); got != c.want {
				t.Errorf("ComposeModel() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestExtractNumberFromCode(t *testing.T) {
	cases := []struct {
		code   string
		wantN  int
		wantOK bool
	}{
		{"1-内层", 1, true},
		{"0-基础", 0, true},
		{"12-外壳", 12, true},
		{"内层", 0, false},
		{"x-内层", 0, false},
		{"-内层", 0, false},
	}
	for _, c := range cases {
		n, ok := ExtractNumberFromCode(c.code)
		if n != c.wantN || ok != c.wantOK {
			t.Errorf("ExtractNumberFromCode(%q) = (%d, %v), want (%d, %v)", c.code, n, ok, c.wantN, c.wantOK)
		}
	}
}
