package renderer

import (
	"context"

	"github.com/ByLCY/vellum/layout"
	"github.com/ByLCY/vellum/sink"
)

// Options 控制渲染过程的回调。
type Options struct {
	// OnPage 在每一页渲染完成后调用，page 从 1 开始。
	OnPage func(page, pages int)
}

// Renderer 按分页计划把文档绘制到输出 Sink。实现同时应当满足
// layout.Typesetter，以保证测量与绘制使用同一套字体度量。
type Renderer interface {
	Render(ctx context.Context, plan *layout.PagePlan, out sink.Sink, opts Options) error
}
