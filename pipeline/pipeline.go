package pipeline

import (
	"context"
	"fmt"

	"github.com/ByLCY/vellum/doctype"
	"github.com/ByLCY/vellum/layout"
	"github.com/ByLCY/vellum/marker"
	"github.com/ByLCY/vellum/registry"
	"github.com/ByLCY/vellum/renderer"
	"github.com/ByLCY/vellum/sink"
)

// Stage 标识流水线当前所处的阶段。
type Stage string

const (
	StageParse    Stage = "parse"
	StageResolve  Stage = "resolve"
	StageRegistry Stage = "registry"
	StageMeasure  Stage = "measure"
	StagePlan     Stage = "plan"
	StageRender   Stage = "render"
	StageFinalize Stage = "finalize"
)

// Event 是流水线进度事件。渲染阶段每完成一页上报一次，
// 其余阶段在进入时上报，Page/Pages 为零。
type Event struct {
	Stage Stage
	Page  int
	Pages int
}

// Progress 接收进度事件，在调用方的 goroutine 内同步执行。
type Progress func(Event)

// Job 描述一次完整的排版导出任务。
type Job struct {
	Text      string
	DocType   string
	Overrides doctype.Overrides
	Sink      sink.Sink
	Progress  Progress

	// DebugPlanPath 非空时把分页结果另存为 JSON。
	DebugPlanPath string
}

// Run 执行完整流水线：解析 → 规则解析 → 块对齐 → 测量 → 分页 → 渲染
// → 提交。任何阶段失败或 ctx 取消都会 Discard 半成品输出，
// 目标路径上不会留下部分文件。
func Run(ctx context.Context, job Job, r renderer.Renderer) (sink.Result, error) {
	if job.Sink == nil {
		return sink.Result{}, fmt.Errorf("pipeline: 缺少输出 Sink")
	}
	res, err := run(ctx, job, r)
	if err != nil {
		job.Sink.Discard()
		return sink.Result{}, err
	}
	return res, nil
}

// stageErr 为错误附上文书类型与失败阶段，保留 %w 链供上层判别。
func stageErr(s Stage, docType string, err error) error {
	return fmt.Errorf("文书类型 %s 在 %s 阶段失败: %w", docType, s, err)
}

func run(ctx context.Context, job Job, r renderer.Renderer) (sink.Result, error) {
	emit := func(e Event) {
		if job.Progress != nil {
			job.Progress(e)
		}
	}
	checkpoint := func(s Stage) error {
		select {
		case <-ctx.Done():
			return stageErr(s, job.DocType, ctx.Err())
		default:
		}
		emit(Event{Stage: s})
		return nil
	}

	if err := checkpoint(StageParse); err != nil {
		return sink.Result{}, err
	}
	stream, err := marker.Parse(job.Text)
	if err != nil {
		return sink.Result{}, stageErr(StageParse, job.DocType, err)
	}

	if err := checkpoint(StageResolve); err != nil {
		return sink.Result{}, err
	}
	rules, err := doctype.Resolve(job.DocType)
	if err != nil {
		return sink.Result{}, stageErr(StageResolve, job.DocType, err)
	}
	rules, err = job.Overrides.Apply(rules)
	if err != nil {
		return sink.Result{}, stageErr(StageResolve, job.DocType, err)
	}
	defs, err := doctype.Definitions(job.DocType)
	if err != nil {
		return sink.Result{}, stageErr(StageResolve, job.DocType, err)
	}

	if err := checkpoint(StageRegistry); err != nil {
		return sink.Result{}, err
	}
	reg, err := registry.Build(job.DocType, stream, defs)
	if err != nil {
		return sink.Result{}, stageErr(StageRegistry, job.DocType, err)
	}
	blocks := layout.Assemble(stream, reg)

	if err := checkpoint(StageMeasure); err != nil {
		return sink.Result{}, err
	}
	ts, ok := r.(layout.Typesetter)
	if !ok {
		return sink.Result{}, stageErr(StageMeasure, job.DocType, fmt.Errorf("渲染器未实现 layout.Typesetter，无法测量"))
	}
	measures, err := layout.Measure(blocks, rules, ts)
	if err != nil {
		return sink.Result{}, stageErr(StageMeasure, job.DocType, err)
	}

	if err := checkpoint(StagePlan); err != nil {
		return sink.Result{}, err
	}
	plan, err := layout.Plan(blocks, measures, rules)
	if err != nil {
		return sink.Result{}, stageErr(StagePlan, job.DocType, err)
	}
	if job.DebugPlanPath != "" {
		if err := layout.WriteDebugJSON(plan, job.DebugPlanPath); err != nil {
			return sink.Result{}, stageErr(StagePlan, job.DocType, err)
		}
	}

	if err := checkpoint(StageRender); err != nil {
		return sink.Result{}, err
	}
	opts := renderer.Options{OnPage: func(page, pages int) {
		emit(Event{Stage: StageRender, Page: page, Pages: pages})
	}}
	if err := r.Render(ctx, plan, job.Sink, opts); err != nil {
		return sink.Result{}, stageErr(StageRender, job.DocType, err)
	}

	if err := checkpoint(StageFinalize); err != nil {
		return sink.Result{}, err
	}
	res, err := job.Sink.Finalize()
	if err != nil {
		return sink.Result{}, stageErr(StageFinalize, job.DocType, err)
	}
	return res, nil
}
