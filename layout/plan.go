package layout

import (
	"fmt"
	"strings"

	"github.com/ByLCY/vellum/doctype"
)

// Plan 是第二遍排程：按测量结果把内容单元贪心地放进页面。
// 段落允许在句边界处跨页拆分；标题与块组是原子的。
// 产出的 PagePlan 带有绝对坐标，渲染阶段照搬即可，不再做任何 fits 判断。
func Plan(blocks []ContentBlock, measures []Measurement, rules doctype.Rules) (*PagePlan, error) {
	if len(blocks) != len(measures) {
		return nil, fmt.Errorf("layout: 内容单元与测量结果数量不一致（%d vs %d）", len(blocks), len(measures))
	}
	usable := UsableHeight(rules)
	p := &planner{rules: rules, usable: usable}

	for i, b := range blocks {
		m := measures[i]
		switch {
		case b.Kind == KindHeading:
			// 标题不落页底：页上已有内容且后面至少一行正文放不下时，
			// 连同标题一起推到下一页。
			next := followingAdvance(measures, i)
			need := m.Height
			if next > 0 {
				need += blockSpacing + next
			}
			if p.used > 0 && p.remaining() < need {
				p.breakPage()
			}
			if !p.place(b, m, m.Height, m.Lines) {
				return nil, &BlockOverflowError{DocType: rules.DocType, BlockID: b.ID, Height: m.Height, Limit: usable}
			}

		case m.CanSplit:
			if err := p.placeParagraph(b, m); err != nil {
				return nil, err
			}

		default:
			if !p.place(b, m, m.Height, m.Lines) {
				return nil, &BlockOverflowError{DocType: rules.DocType, BlockID: b.ID, Height: m.Height, Limit: usable}
			}
		}
	}

	p.flush()
	if len(p.pages) == 0 {
		p.pages = append(p.pages, PlannedPage{})
	}
	return &PagePlan{Rules: rules, Pages: p.pages}, nil
}

type planner struct {
	rules  doctype.Rules
	usable float64

	pages   []PlannedPage
	current []Entry
	used    float64
}

func (p *planner) remaining() float64 {
	r := p.usable - p.used
	if p.used > 0 {
		r -= blockSpacing
	}
	return r
}

func (p *planner) breakPage() {
	p.pages = append(p.pages, PlannedPage{Entries: p.current, Used: p.used})
	p.current = nil
	p.used = 0
}

func (p *planner) flush() {
	if len(p.current) > 0 {
		p.breakPage()
	}
}

// place 尝试把一个高度为 h 的条目放到当前页，放不下则换页再试。
// 在空页上仍放不下返回 false。
func (p *planner) place(b ContentBlock, m Measurement, h float64, lines []TextLine) bool {
	if p.remaining() < h {
		if p.used > 0 {
			p.breakPage()
		}
		if p.usable-p.used < h {
			return false
		}
	}
	y := p.rules.Margin.Top + p.used
	if p.used > 0 {
		y += blockSpacing
		p.used += blockSpacing
	}
	p.current = append(p.current, Entry{
		Block:       b,
		Y:           y,
		Height:      h,
		LineAdvance: m.LineAdvance,
		Lines:       lines,
		Columns:     m.Columns,
		ColumnWidth: m.ColumnWidth,
	})
	p.used += h
	return true
}

// placeParagraph 放置可拆分段落：整段放不下时在句边界处切开，
// 余下部分从下一页页顶继续。任何一半都不允许只剩一行。
func (p *planner) placeParagraph(b ContentBlock, m Measurement) error {
	lines := m.Lines
	part := 0
	for len(lines) > 0 {
		h := float64(len(lines)) * m.LineAdvance
		if p.remaining() >= h {
			p.place(partBlock(b, part), m, h, lines)
			return nil
		}
		fit := int(p.remaining() / m.LineAdvance)
		k := splitIndex(lines, fit)
		if k == 0 {
			if p.used > 0 {
				// 当前页剩余空间容不下合规的前半段，整体后移。
				p.breakPage()
				continue
			}
			// 空页仍放不下整段且找不到句边界，退化为按行硬切，
			// 保证超长段落仍能排出。
			k = fit
			if k > len(lines)-2 {
				k = len(lines) - 2
			}
			if k < 2 {
				return &BlockOverflowError{DocType: p.rules.DocType, BlockID: b.ID, Height: h, Limit: p.usable}
			}
		}
		p.place(partBlock(b, part), m, float64(k)*m.LineAdvance, lines[:k])
		part++
		lines = lines[k:]
		p.breakPage()
	}
	return nil
}

func partBlock(b ContentBlock, part int) ContentBlock {
	if part == 0 {
		return b
	}
	b.ID = fmt.Sprintf("%s.%d", b.ID, part+1)
	return b
}

// splitIndex 在前 fit 行内寻找合法的拆分点：切口必须落在句末行，
// 且两半都不少于两行。找不到返回 0（不拆，整段后移）。
func splitIndex(lines []TextLine, fit int) int {
	max := fit
	if max > len(lines)-2 {
		max = len(lines) - 2
	}
	for k := max; k >= 2; k-- {
		if endsSentence(lines[k-1].Content) {
			return k
		}
	}
	return 0
}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, " \t\"')]”’")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		return true
	}
	return false
}

// followingAdvance 返回下一个内容单元的最小前置高度，用于标题的
// keep-with-next 判断。可拆分段落的任何前半段都不少于两行，
// 预留高度必须与拆分下限一致，否则标题会孤立在页底；原子块取整块。
func followingAdvance(measures []Measurement, i int) float64 {
	if i+1 >= len(measures) {
		return 0
	}
	next := measures[i+1]
	if next.CanSplit {
		if len(next.Lines) == 1 {
			return next.LineAdvance
		}
		return 2 * next.LineAdvance
	}
	return next.Height
}
