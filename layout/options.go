package layout

// Typesetter 负责在给定宽度约束下把文本折成可绘制的行，并给出每行的
// 自然行高。唯一合法实现来自渲染后端：只有渲染器自己的度量能保证
// 第二遍绘制与第一遍测量一致，布局层不做任何解析式估算。
type Typesetter interface {
	// LayoutLines 折行。width 为 mm，fontSize 为 pt，返回行高为 mm。
	LayoutLines(content string, width float64, fontSize float64) ([]TextLine, error)
}
