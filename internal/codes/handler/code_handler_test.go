package handler

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/nimo-codes/internal/codes/entity"
	"github.com/bitfantasy/nimo-codes/internal/codes/testutil"
)

// seedThreeTierCodes 建好 PCB / SLU- / 1-内层 的三级结构，返回机型分类ID和代码分类ID。
// 创建代码分类会顺带预生成 SLU-100 ~ SLU-199 共 100 条编码。
func seedThreeTierCodes(t *testing.T, env *testutil.TestEnv, token string) (mcID, ccID string) {
	t.Helper()
	pt := testutil.SeedProductType(t, env.DB, "PCB", "线路板")
	mc := testutil.SeedModelClassification(t, env.DB, pt.ID, "SLU-", "单面板", true)

	w := testutil.DoRequest(env.Router, "POST",
		"/api/v1/model-classifications/"+mc.ID+"/code-classifications",
		map[string]interface{}{"code": "1-内层", "name": "内层"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Failed to seed code classification: %d %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	return mc.ID, data["classification"].(map[string]interface{})["id"].(string)
}

func findUsageByModel(t *testing.T, env *testutil.TestEnv, model string) *entity.CodeUsage {
	t.Helper()
	var usage entity.CodeUsage
	if err := env.DB.First(&usage, "model = ? AND is_deleted = false", model).Error; err != nil {
		t.Fatalf("Failed to find code usage %s: %v", model, err)
	}
	return &usage
}

func TestAllocateCode(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	seedThreeTierCodes(t, env, token)

	usage := findUsageByModel(t, env, "SLU-150")

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/codes/"+usage.ID+"/allocate",
		map[string]interface{}{
			"extension":      "B",
			"occupancy_type": "planning",
			"product_name":   "双频路由器",
			"customer":       "客户A",
		}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["model"] != "SLU-150B" {
		t.Errorf("Expected model SLU-150B, got %v", data["model"])
	}
	if data["is_allocated"] != true {
		t.Errorf("Expected is_allocated true")
	}
	if data["occupancy_type"] != "planning" {
		t.Errorf("Expected occupancy_type planning, got %v", data["occupancy_type"])
	}

	// 已占用的编码不能再次占用
	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/codes/"+usage.ID+"/allocate",
		map[string]interface{}{"product_name": "另一个产品"}, token)
	if w2.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for double allocation, got %d: %s", w2.Code, w2.Body.String())
	}
}

func TestAllocateCodeInvalidExtension(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	seedThreeTierCodes(t, env, token)

	usage := findUsageByModel(t, env, "SLU-150")

	// I 是禁用字符
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/codes/"+usage.ID+"/allocate",
		map[string]interface{}{"extension": "I"}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}

	// 校验失败不能改变状态
	after := findUsageByModel(t, env, "SLU-150")
	if after.IsAllocated {
		t.Errorf("Failed allocation must not mark entry allocated")
	}
}

func TestManualCodeUpsert(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	pt := testutil.SeedProductType(t, env.DB, "PCB", "线路板")
	mc := testutil.SeedModelClassification(t, env.DB, pt.ID, "ODM-", "代工板", false)

	// 首次：新建，直接占用
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/model-classifications/"+mc.ID+"/codes",
		map[string]interface{}{"number_part": "07", "product_name": "产品甲"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["outcome"] != "created" {
		t.Errorf("Expected outcome created, got %v", data["outcome"])
	}
	entry := data["entry"].(map[string]interface{})
	if entry["model"] != "ODM-07" || entry["is_allocated"] != true {
		t.Errorf("Unexpected entry: %v", entry)
	}

	// 再次提交同一编码：转为覆盖更新，不报错不建新行
	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/model-classifications/"+mc.ID+"/codes",
		map[string]interface{}{"number_part": "07", "product_name": "产品乙"}, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	data2 := testutil.ParseResponse(w2)["data"].(map[string]interface{})
	if data2["outcome"] != "updated" {
		t.Errorf("Expected outcome updated, got %v", data2["outcome"])
	}

	var count int64
	env.DB.Model(&entity.CodeUsage{}).Where("model = ?", "ODM-07").Count(&count)
	if count != 1 {
		t.Errorf("Expected single row for ODM-07, got %d", count)
	}
	if findUsageByModel(t, env, "ODM-07").ProductName != "产品乙" {
		t.Errorf("Expected metadata overwritten by second submit")
	}
}

func TestManualCodeBadNumberPart(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	pt := testutil.SeedProductType(t, env.DB, "PCB", "线路板")
	mc := testutil.SeedModelClassification(t, env.DB, pt.ID, "ODM-", "代工板", false)

	for _, numberPart := range []string{"7", "123", "a7"} {
		w := testutil.DoRequest(env.Router, "POST", "/api/v1/model-classifications/"+mc.ID+"/codes",
			map[string]interface{}{"number_part": numberPart}, token)
		if w.Code != http.StatusBadRequest {
			t.Errorf("number_part %q: expected 400, got %d", numberPart, w.Code)
		}
	}
}

func TestSoftDeleteAndRestore(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	seedThreeTierCodes(t, env, token)

	usage := findUsageByModel(t, env, "SLU-150")
	testutil.DoRequest(env.Router, "POST", "/api/v1/codes/"+usage.ID+"/allocate",
		map[string]interface{}{"product_name": "产品甲"}, token)

	// 删除，保留占用状态
	w := testutil.DoRequest(env.Router, "DELETE", "/api/v1/codes/"+usage.ID,
		map[string]interface{}{"reason": "型号作废"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var deleted entity.CodeUsage
	env.DB.First(&deleted, "id = ?", usage.ID)
	if !deleted.IsDeleted || deleted.DeletedReason == nil || *deleted.DeletedReason != "型号作废" {
		t.Fatalf("Expected deleted with reason, got %+v", deleted)
	}
	if !deleted.IsAllocated {
		t.Errorf("Soft delete must not clear allocation state")
	}

	// 重复删除等同操作不存在的编码
	w2 := testutil.DoRequest(env.Router, "DELETE", "/api/v1/codes/"+usage.ID, nil, token)
	if w2.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for double delete, got %d: %s", w2.Code, w2.Body.String())
	}

	// 恢复到删除前的样子
	w3 := testutil.DoRequest(env.Router, "POST", "/api/v1/codes/"+usage.ID+"/restore", nil, token)
	if w3.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w3.Code, w3.Body.String())
	}
	data := testutil.ParseResponse(w3)["data"].(map[string]interface{})
	if data["is_deleted"] != false || data["is_allocated"] != true {
		t.Errorf("Expected restore to keep allocation, got %v", data)
	}
	if _, hasReason := data["deleted_reason"]; hasReason {
		t.Errorf("Expected deleted_reason cleared, got %v", data["deleted_reason"])
	}

	// 未删除的编码不能恢复
	w4 := testutil.DoRequest(env.Router, "POST", "/api/v1/codes/"+usage.ID+"/restore", nil, token)
	if w4.Code != http.StatusConflict {
		t.Fatalf("Expected 409 restoring active entry, got %d: %s", w4.Code, w4.Body.String())
	}
}

func TestRestoreBlockedWhenCodeReissued(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	_, ccID := seedThreeTierCodes(t, env, token)

	usage := findUsageByModel(t, env, "SLU-150")
	testutil.DoRequest(env.Router, "DELETE", "/api/v1/codes/"+usage.ID,
		map[string]interface{}{"reason": "误建"}, token)

	// 删除期间重触发预生成，同一编码作为新条目重新发出
	testutil.DoRequest(env.Router, "POST", "/api/v1/code-classifications/"+ccID+"/preallocate", nil, token)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/codes/"+usage.ID+"/restore", nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 restoring reissued code, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBatchSoftDeleteAndRestore(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	seedThreeTierCodes(t, env, token)

	a := findUsageByModel(t, env, "SLU-110")
	b := findUsageByModel(t, env, "SLU-111")

	// 单条失败只记入结果，不中断整批
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/codes/batch-delete",
		map[string]interface{}{"ids": []string{a.ID, b.ID, "no-such-id"}, "reason": "批量清理"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(items))
	}
	okCount := 0
	for _, it := range items {
		if it.(map[string]interface{})["ok"] == true {
			okCount++
		}
	}
	if okCount != 2 {
		t.Errorf("Expected 2 ok results, got %d", okCount)
	}

	var deletedCount int64
	env.DB.Model(&entity.CodeUsage{}).Where("is_deleted = true").Count(&deletedCount)
	if deletedCount != 2 {
		t.Errorf("Expected 2 deleted rows, got %d", deletedCount)
	}

	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/codes/batch-restore",
		map[string]interface{}{"ids": []string{a.ID, b.ID}}, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	env.DB.Model(&entity.CodeUsage{}).Where("is_deleted = true").Count(&deletedCount)
	if deletedCount != 0 {
		t.Errorf("Expected all rows restored, got %d still deleted", deletedCount)
	}
}

func TestBatchRestoreReissuedCode(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	_, ccID := seedThreeTierCodes(t, env, token)

	a := findUsageByModel(t, env, "SLU-150")
	b := findUsageByModel(t, env, "SLU-151")
	testutil.DoRequest(env.Router, "POST", "/api/v1/codes/batch-delete",
		map[string]interface{}{"ids": []string{a.ID, b.ID}, "reason": "批量清理"}, token)

	// 删除期间重触发预生成，SLU-150 作为新条目重新发出
	testutil.DoRequest(env.Router, "POST", "/api/v1/code-classifications/"+ccID+"/preallocate", nil, token)

	// 撞码的那条失败记入结果，另一条的恢复要落库，不能被连累回滚
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/codes/batch-restore",
		map[string]interface{}{"ids": []string{a.ID, b.ID}}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(items))
	}
	for _, it := range items {
		item := it.(map[string]interface{})
		switch item["id"] {
		case a.ID:
			if item["ok"] == true || item["error"] != "编码已存在" {
				t.Errorf("Expected reissued code to fail with 编码已存在, got %v", item)
			}
		case b.ID:
			if item["ok"] != true {
				t.Errorf("Expected %s restored, got %v", b.Model, item)
			}
		default:
			t.Errorf("Unexpected result id %v", item["id"])
		}
	}

	var restored entity.CodeUsage
	if err := env.DB.First(&restored, "id = ?", b.ID).Error; err != nil {
		t.Fatalf("Failed to reload %s: %v", b.Model, err)
	}
	if restored.IsDeleted {
		t.Errorf("Expected %s durably restored", b.Model)
	}
	var stillDeleted entity.CodeUsage
	if err := env.DB.First(&stillDeleted, "id = ?", a.ID).Error; err != nil {
		t.Fatalf("Failed to reload %s: %v", a.Model, err)
	}
	if !stillDeleted.IsDeleted {
		t.Errorf("Expected reissued %s to stay deleted", a.Model)
	}
}

func TestUpdateEntryRequiresAllocation(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	seedThreeTierCodes(t, env, token)

	// 预生成未占用的条目没有可编辑内容，编辑要被拒
	usage := findUsageByModel(t, env, "SLU-150")
	w := testutil.DoRequest(env.Router, "PUT", "/api/v1/codes/"+usage.ID,
		map[string]interface{}{"product_name": "产品甲"}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 editing unallocated entry, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateEntryExtensionChange(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	_, ccID := seedThreeTierCodes(t, env, token)

	usage := findUsageByModel(t, env, "SLU-150")
	testutil.DoRequest(env.Router, "POST", "/api/v1/codes/"+usage.ID+"/allocate",
		map[string]interface{}{"extension": "B", "product_name": "产品甲"}, token)

	// 延伸码变化会重拼完整编码
	w := testutil.DoRequest(env.Router, "PUT", "/api/v1/codes/"+usage.ID,
		map[string]interface{}{"extension": "C", "customer": "客户B"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["model"] != "SLU-150C" {
		t.Errorf("Expected model SLU-150C, got %v", data["model"])
	}
	if data["customer"] != "客户B" {
		t.Errorf("Expected customer updated, got %v", data["customer"])
	}

	// 原编码 SLU-150 被重拼释放后，重触发预生成会把它作为新条目补回来
	testutil.DoRequest(env.Router, "POST", "/api/v1/code-classifications/"+ccID+"/preallocate", nil, token)

	// 改成已被其他条目占用的编码被拒
	w2 := testutil.DoRequest(env.Router, "PUT", "/api/v1/codes/"+usage.ID,
		map[string]interface{}{"extension": ""}, token)
	if w2.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for collision with regenerated SLU-150, got %d: %s", w2.Code, w2.Body.String())
	}
}

func TestStatsAndAvailability(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	mcID, _ := seedThreeTierCodes(t, env, token)

	usage := findUsageByModel(t, env, "SLU-150")
	testutil.DoRequest(env.Router, "POST", "/api/v1/codes/"+usage.ID+"/allocate",
		map[string]interface{}{"product_name": "产品甲"}, token)

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/codes/stats?model_classification_id="+mcID, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	stats := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if stats["total"].(float64) != 100 || stats["allocated"].(float64) != 1 || stats["available"].(float64) != 99 {
		t.Errorf("Unexpected stats: %v", stats)
	}

	// 已占用的编码不可用
	w2 := testutil.DoRequest(env.Router, "GET",
		"/api/v1/codes/availability?model_type=SLU-&classification_number=1&actual_number=50", nil, token)
	if testutil.ParseResponse(w2)["data"].(map[string]interface{})["available"] != false {
		t.Errorf("Expected SLU-150 unavailable")
	}

	// 预生成但未占用的编码也视为不可用（行已存在）
	w3 := testutil.DoRequest(env.Router, "GET",
		"/api/v1/codes/availability?model_type=SLU-&classification_number=1&actual_number=51", nil, token)
	if testutil.ParseResponse(w3)["data"].(map[string]interface{})["available"] != false {
		t.Errorf("Expected preallocated SLU-151 unavailable")
	}

	// 不存在的组合可用
	w4 := testutil.DoRequest(env.Router, "GET",
		"/api/v1/codes/availability?model_type=SLU-&classification_number=1&actual_number=50&extension=Z", nil, token)
	if testutil.ParseResponse(w4)["data"].(map[string]interface{})["available"] != true {
		t.Errorf("Expected SLU-150Z available")
	}
}

func TestListCodesFilters(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	mcID, _ := seedThreeTierCodes(t, env, token)

	usage := findUsageByModel(t, env, "SLU-150")
	testutil.DoRequest(env.Router, "POST", "/api/v1/codes/"+usage.ID+"/allocate",
		map[string]interface{}{"product_name": "双频路由器"}, token)

	w := testutil.DoRequest(env.Router, "GET",
		"/api/v1/codes?model_classification_id="+mcID+"&is_allocated=true", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["pagination"].(map[string]interface{})["total"].(float64) != 1 {
		t.Errorf("Expected 1 allocated code, got %v", data["pagination"])
	}

	// 关键字检索命中产品名
	w2 := testutil.DoRequest(env.Router, "GET", "/api/v1/codes?keyword=路由器", nil, token)
	data2 := testutil.ParseResponse(w2)["data"].(map[string]interface{})
	if data2["pagination"].(map[string]interface{})["total"].(float64) != 1 {
		t.Errorf("Expected keyword match, got %v", data2["pagination"])
	}
}

func TestExportCodes(t *testing.T) {
	env := setupCodesTest(t)
	token := testutil.DefaultTestToken()
	seedThreeTierCodes(t, env, token)

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/codes/export?format=xlsx", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("Unexpected content type: %s", ct)
	}
	if w.Body.Len() == 0 {
		t.Errorf("Expected non-empty xlsx body")
	}

	w2 := testutil.DoRequest(env.Router, "GET", "/api/v1/codes/export?format=csv", nil, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	if w2.Body.Len() == 0 {
		t.Errorf("Expected non-empty csv body")
	}
}
