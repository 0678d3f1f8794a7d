package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/donhauser/atlas-agent/aimap"
	"github.com/donhauser/atlas-agent/binding"
)

// systemPrompt is the assistant profile sent with every collaborator
// call. The assistant answers in the user's language, so the profile is
// authored in Chinese to match the product's primary audience.
const systemPrompt = `你是企业管理系统的智能助手，帮助用户查询和管理客户、报价单、项目、合同等业务数据。

规则：
1. 优先使用系统提供的专用工具完成任务，不要凭空编造数据。
2. 查询结果用简洁的 Markdown 表格呈现。
3. 涉及新增、修改、删除等操作时，必须先向用户确认。
4. 始终使用用户提问所用的语言回答。
5. 如果缺少完成任务所需的信息，直接向用户询问，不要猜测。`

// extractionPrompt asks the collaborator to pull the named parameters
// out of the user message as a JSON object.
func extractionPrompt(message string, params []string) string {
	var b strings.Builder
	b.WriteString("从下面的用户消息中提取参数，只返回一个 JSON 对象，不要附加任何解释。\n")
	b.WriteString("需要的参数：\n")
	for _, p := range params {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	b.WriteString("消息中没有出现的参数用 null 表示。\n\n")
	fmt.Fprintf(&b, "用户消息：%s", message)
	return b.String()
}

// phrasePrompt asks the collaborator to turn plan guidance into the
// reply shown to the user.
func phrasePrompt(guidance []string) string {
	var b strings.Builder
	b.WriteString("以下是刚刚执行的操作步骤的说明，请据此用自然语言回复用户：\n")
	for _, g := range guidance {
		fmt.Fprintf(&b, "- %s\n", g)
	}
	return b.String()
}

// userParams returns the context keys a plan needs the user to supply:
// every placeholder root referenced by a step's params template that no
// earlier step writes as its outputKey.
func userParams(plan *aimap.Map) []string {
	produced := make(map[string]bool)
	seen := make(map[string]bool)
	var params []string
	for _, step := range plan.Steps {
		for _, root := range binding.Placeholders(step.ParamsTemplate) {
			if !produced[root] && !seen[root] {
				seen[root] = true
				params = append(params, root)
			}
		}
		if step.OutputKey != "" {
			produced[step.OutputKey] = true
		}
	}
	sort.Strings(params)
	return params
}
