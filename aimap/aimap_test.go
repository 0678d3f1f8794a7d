package aimap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryClientMap() *Map {
	return &Map{
		ID:       "query_client",
		Name:     "查询客户",
		Triggers: []string{"查一下", "查询客户"},
		Module:   "crm",
		Priority: 10,
		Enabled:  true,
		Steps: []Step{
			{
				Order:          1,
				Name:           "查询",
				Action:         "按名称查询客户",
				ToolID:         "query_client",
				ParamsTemplate: map[string]any{"name": "{{用户提供的客户名称}}"},
				OutputKey:      "client",
				NextStepPrompt: "将查询到的客户信息展示给用户",
			},
		},
	}
}

func newTestMatcher(t *testing.T, maps ...*Map) *Matcher {
	t.Helper()
	m := NewMatcher(Scopes{"crm": {"crm", "common"}})
	for _, plan := range maps {
		require.NoError(t, m.Register(plan))
	}
	return m
}

func TestMatchByTrigger(t *testing.T) {
	m := newTestMatcher(t, queryClientMap())

	plan := m.Match("查一下中信出版社的信息", "crm")
	require.NotNil(t, plan)
	assert.Equal(t, "query_client", plan.ID)
}

func TestMatchNoTriggerFallsThrough(t *testing.T) {
	m := newTestMatcher(t, queryClientMap())
	assert.Nil(t, m.Match("今天天气怎么样", "crm"))
}

func TestMatchRespectsModuleScope(t *testing.T) {
	finance := queryClientMap()
	finance.ID = "finance_report"
	finance.Module = "finance"
	m := newTestMatcher(t, queryClientMap(), finance)

	plan := m.Match("查一下中信出版社", "crm")
	require.NotNil(t, plan)
	assert.Equal(t, "query_client", plan.ID)

	// Unconfigured scope only sees its own module.
	assert.Nil(t, m.Match("查一下利润", "hr"))
}

func TestMatchSkipsDisabled(t *testing.T) {
	disabled := queryClientMap()
	disabled.Enabled = false
	m := newTestMatcher(t, disabled)
	assert.Nil(t, m.Match("查一下中信出版社", "crm"))
}

func TestMatchPriorityAndDeclarationOrder(t *testing.T) {
	low := queryClientMap()
	low.ID = "low"
	low.Priority = 1

	high := queryClientMap()
	high.ID = "high"
	high.Priority = 20

	tiedFirst := queryClientMap()
	tiedFirst.ID = "tied_first"
	tiedFirst.Priority = 20

	m := newTestMatcher(t, low, high, tiedFirst)

	plan := m.Match("查一下中信出版社", "crm")
	require.NotNil(t, plan)
	assert.Equal(t, "high", plan.ID, "highest priority wins, earliest declaration breaks ties")

	// Same inputs, same winner, every time.
	for i := 0; i < 10; i++ {
		assert.Equal(t, "high", m.Match("查一下中信出版社", "crm").ID)
	}
}

func TestConditionEval(t *testing.T) {
	c := &Condition{Describe: "客户不存在时", When: "existing == nil"}
	require.NoError(t, c.compile())

	ok, err := c.Eval(map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok, "unset key reads as nil")

	ok, err = c.Eval(map[string]any{"existing": map[string]any{"name": "x"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMapValidateRejectsBadCondition(t *testing.T) {
	plan := queryClientMap()
	plan.Steps[0].Condition = &Condition{When: "existing =="}
	assert.Error(t, plan.Validate())
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	content := `
maps:
  - id: query_client
    name: 查询客户
    triggers: ["查一下", "查询客户"]
    module: crm
    priority: 10
    enabled: true
    steps:
      - order: 1
        name: 查询
        action: 按名称查询客户
        toolId: query_client
        paramsTemplate:
          name: "{{用户提供的客户名称}}"
        outputKey: client
        nextStepPrompt: 将查询到的客户信息展示给用户
  - id: create_client
    name: 新建客户
    triggers: ["新建客户", "添加客户"]
    module: crm
    priority: 5
    enabled: true
    steps:
      - order: 1
        name: 查重
        action: 检查客户是否已存在
        toolId: query_client
        paramsTemplate:
          name: "{{用户提供的客户名称}}"
        outputKey: existing
      - order: 2
        name: 创建
        action: 创建客户记录
        toolId: create_client
        condition:
          describe: 客户不存在时
          when: existing.data == nil
        paramsTemplate:
          name: "{{用户提供的客户名称}}"
        outputKey: created
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crm.yaml"), []byte(content), 0644))

	matcher := NewMatcher(Scopes{"crm": {"crm"}})
	loaded, err := LoadDirectory(matcher, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	plan := matcher.Match("帮我新建客户晨光文具", "crm")
	require.NotNil(t, plan)
	assert.Equal(t, "create_client", plan.ID)
	require.Len(t, plan.Steps, 2)
	require.NotNil(t, plan.Steps[1].Condition)
	assert.Equal(t, "客户不存在时", plan.Steps[1].Condition.Describe)
}
