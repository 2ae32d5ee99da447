package layout

// 该文件定义内容单元、测量结果与最终页面计划，供测量、排程与渲染共用。

import (
	"github.com/ByLCY/vellum/doctype"
	"github.com/ByLCY/vellum/registry"
)

// BlockKind 区分内容单元的三种形态。
type BlockKind int

const (
	KindParagraph BlockKind = iota
	KindHeading
	KindGroup
)

// ContentBlock 是测量与分页的原子单位：正文段落、标题行或块组。
// 块组（签名/缩写/公证）永远整体放置，不参与拆分。
type ContentBlock struct {
	ID    string
	Kind  BlockKind
	Text  string          // KindParagraph / KindHeading
	Group *registry.Group // KindGroup
}

// TextLine 是排版后端折行后的一行文本。Height 为该字体在单倍行距下的
// 自然行高（mm），由渲染后端度量，布局层不自行推导。
type TextLine struct {
	Content string
	Width   float64
	Height  float64
}

// Column 是块组中一个成员的纵向列。
type Column struct {
	Member registry.Block
	Height float64
}

// Measurement 是第一遍测量的产物，进入排程后即丢弃。
type Measurement struct {
	BlockID     string
	Height      float64 // mm
	CanSplit    bool
	LineAdvance float64    // 段落每行占用高度（含行距与安全系数）
	Lines       []TextLine // 段落折行结果
	Columns     []Column   // 块组成员列
	ColumnWidth float64
}

// Entry 是页面计划中一个已定位的内容条目。段落拆分后的续段
// 会以相同 Block 出现在后续页面的条目中；块组永不拆分。
type Entry struct {
	Block       ContentBlock
	Y           float64 // 距页面顶部的绝对偏移（mm）
	Height      float64
	LineAdvance float64
	Lines       []TextLine
	Columns     []Column
	ColumnWidth float64
}

// PlannedPage 是一页的条目集合与累计占用高度。
type PlannedPage struct {
	Entries []Entry
	Used    float64
}

// PagePlan 是渲染前敲定的分页结果；渲染阶段只读。
type PagePlan struct {
	Rules doctype.Rules
	Pages []PlannedPage
}

// PageCount 返回计划页数。
func (p *PagePlan) PageCount() int {
	return len(p.Pages)
}
