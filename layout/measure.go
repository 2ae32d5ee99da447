package layout

import (
	"fmt"

	"github.com/ByLCY/vellum/doctype"
)

const (
	// heightSafetyBuffer 是名义内容高度上预留的安全余量比例，用来吸收
	// 渲染后端内部 padding 与亚像素取整。针对 tdewolff/canvas 标定，
	// 调小前先确认不会出现多余空白页。
	heightSafetyBuffer = 0.04

	// measureSlack 是段落行高上的经验安全系数，吸收测量与绘制两次调用
	// 之间的取整差异。
	measureSlack = 0.015

	// defaultLineFactor 是排版后端未给出自然行高时的回退系数。
	defaultLineFactor = 1.15

	// 块组版式常量（mm）。
	signingGap         = 12.0 // 署名墨迹区高度，横线画在区底
	columnGutter       = 12.7 // side-by-side 两列之间的间距（0.5in）
	standaloneColWidth = 85.0 // standalone 块的最大列宽

	// blockSpacing 是同页相邻条目之间的垂直间距（mm）。
	blockSpacing = 3.0
)

// BlockOverflowError 表示单个原子块高过可用页高，不存在能容纳它的页面。
type BlockOverflowError struct {
	DocType string
	BlockID string
	Height  float64
	Limit   float64
}

func (e *BlockOverflowError) Error() string {
	return fmt.Sprintf("块 %q 高度 %.1fmm 超过可用页高 %.1fmm，无法放置（文书类型 %s）",
		e.BlockID, e.Height, e.Limit, e.DocType)
}

// UsableHeight 返回分页决策使用的最大可用内容高度：名义内容高度
// 扣除安全余量。所有 fits-or-breaks 判断都以它为准。
func UsableHeight(rules doctype.Rules) float64 {
	return rules.ContentHeight() * (1 - heightSafetyBuffer)
}

// Measure 对每个内容单元做第一遍高度测量。段落高度来自排版后端的
// 折行结果；块组高度取各成员列的最大值（side-by-side 成员平行排布）。
// 任何原子块超出可用页高都会立即失败，不产生任何输出。
func Measure(blocks []ContentBlock, rules doctype.Rules, ts Typesetter) ([]Measurement, error) {
	if ts == nil {
		return nil, fmt.Errorf("layout: 缺少排版后端 Typesetter")
	}
	usable := UsableHeight(rules)
	out := make([]Measurement, 0, len(blocks))
	for _, b := range blocks {
		var (
			m   Measurement
			err error
		)
		switch b.Kind {
		case KindParagraph, KindHeading:
			m, err = measureText(b, rules, ts)
		case KindGroup:
			m, err = measureGroup(b, rules, ts)
		default:
			err = fmt.Errorf("layout: 未知的内容单元形态 %d", b.Kind)
		}
		if err != nil {
			return nil, err
		}
		if m.Height <= 0 {
			return nil, fmt.Errorf("layout: 块 %q 测得非正高度 %.3f", b.ID, m.Height)
		}
		// 原子块（块组）或单行都必须能落进一页。
		atomic := m.Height
		if m.CanSplit {
			atomic = m.LineAdvance
		}
		if atomic > usable {
			return nil, &BlockOverflowError{DocType: rules.DocType, BlockID: b.ID, Height: atomic, Limit: usable}
		}
		out = append(out, m)
	}
	return out, nil
}

func measureText(b ContentBlock, rules doctype.Rules, ts Typesetter) (Measurement, error) {
	lines, err := ts.LayoutLines(b.Text, rules.ContentWidth(), rules.FontSize)
	if err != nil {
		return Measurement{}, fmt.Errorf("测量段落 %q 失败: %w", b.ID, err)
	}
	if len(lines) == 0 {
		lines = []TextLine{{Content: b.Text}}
	}
	advance := lineAdvance(lines, rules)
	return Measurement{
		BlockID:     b.ID,
		Height:      float64(len(lines)) * advance,
		CanSplit:    b.Kind == KindParagraph, // 标题行不拆，且由排程保证不落在页底
		LineAdvance: advance,
		Lines:       lines,
	}, nil
}

func measureGroup(b ContentBlock, rules doctype.Rules, ts Typesetter) (Measurement, error) {
	g := b.Group
	if g == nil || len(g.Members) == 0 {
		return Measurement{}, fmt.Errorf("layout: 块组 %q 没有成员", b.ID)
	}
	colWidth := standaloneColWidth
	if w := rules.ContentWidth(); colWidth > w {
		colWidth = w
	}
	if g.SideBySide {
		n := float64(len(g.Members))
		colWidth = (rules.ContentWidth() - columnGutter*(n-1)) / n
	}

	// 字段标签按单行估计即可，但行高仍取自排版后端的真实度量。
	probe, err := ts.LayoutLines("X", colWidth, rules.FontSize)
	if err != nil {
		return Measurement{}, fmt.Errorf("测量块组 %q 失败: %w", b.ID, err)
	}
	advance := lineAdvance(probe, rules)

	var maxH float64
	columns := make([]Column, 0, len(g.Members))
	for _, member := range g.Members {
		h := columnHeight(member.Kind, len(member.Fields), advance)
		if h > maxH {
			maxH = h
		}
		columns = append(columns, Column{Member: member, Height: h})
	}

	return Measurement{
		BlockID:     b.ID,
		Height:      maxH,
		CanSplit:    false,
		LineAdvance: advance,
		Columns:     columns,
		ColumnWidth: colWidth,
	}, nil
}

// columnHeight 计算单个成员列的高度：standard 形态为抬头行 + 署名区 +
// 字段行；simple 形态省去抬头，署名区减半。
func columnHeight(kind doctype.BlockKind, fields int, advance float64) float64 {
	switch kind {
	case doctype.KindSimple:
		return signingGap/2 + advance + float64(fields)*advance
	default: // doctype.KindStandard
		return advance + signingGap + float64(fields)*advance
	}
}

// lineAdvance 计算每行占用高度：自然行高 × 行距系数 × 安全系数。
func lineAdvance(lines []TextLine, rules doctype.Rules) float64 {
	natural := 0.0
	for _, ln := range lines {
		if ln.Height > natural {
			natural = ln.Height
		}
	}
	if natural <= 0 {
		natural = rules.FontSize * PtToMm * defaultLineFactor
	}
	return natural * rules.LineSpacing.Factor() * (1 + measureSlack)
}
