package layout

import (
	"strings"
	"testing"

	"github.com/ByLCY/vellum/doctype"
	"github.com/ByLCY/vellum/registry"
)

// stubTypesetter 是测试用最小实现，避免引入 renderer 造成循环依赖。
// 折行策略完全确定：按 "|" 切分，每段一行，行高固定。
type stubTypesetter struct {
	lineHeight float64
}

func (s *stubTypesetter) LayoutLines(content string, width float64, fontSize float64) ([]TextLine, error) {
	h := s.lineHeight
	if h <= 0 {
		h = 4.0
	}
	parts := strings.Split(content, "|")
	lines := make([]TextLine, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, TextLine{Content: p, Width: float64(len(p)), Height: h})
	}
	return lines, nil
}

func testRules() doctype.Rules {
	return doctype.Rules{
		DocType:     "test",
		PageWidth:   215.9,
		PageHeight:  279.4,
		Margin:      doctype.Margin{Top: 25.4, Right: 25.4, Bottom: 25.4, Left: 25.4},
		FontSize:    12,
		LineSpacing: doctype.SpacingSingle,
	}
}

// repeatSentences 生成 n 行句末收尾的段落文本（"|" 为行分隔）。
func repeatSentences(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "This line ends with a period."
	}
	return strings.Join(parts, "|")
}

func paragraph(id string, lines int) ContentBlock {
	return ContentBlock{ID: id, Kind: KindParagraph, Text: repeatSentences(lines)}
}

func standardGroup(id string, fields int) ContentBlock {
	fs := make([]doctype.Field, fields)
	for i := range fs {
		fs[i] = doctype.Field{Name: "f", Label: "Field"}
	}
	return ContentBlock{ID: id, Kind: KindGroup, Group: &registry.Group{
		ID: id,
		Members: []registry.Block{{
			ID: id, Kind: doctype.KindStandard,
			Party: doctype.Party{Role: "party", Label: "PARTY"}, Fields: fs,
		}},
	}}
}

func mustMeasure(t *testing.T, blocks []ContentBlock, rules doctype.Rules) []Measurement {
	t.Helper()
	ms, err := Measure(blocks, rules, &stubTypesetter{lineHeight: 4.0})
	if err != nil {
		t.Fatalf("测量失败: %v", err)
	}
	return ms
}

func mustPlan(t *testing.T, blocks []ContentBlock, rules doctype.Rules) *PagePlan {
	t.Helper()
	plan, err := Plan(blocks, mustMeasure(t, blocks, rules), rules)
	if err != nil {
		t.Fatalf("排程失败: %v", err)
	}
	return plan
}
