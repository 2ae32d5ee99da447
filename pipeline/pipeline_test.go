package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ByLCY/vellum/doctype"
	"github.com/ByLCY/vellum/layout"
	"github.com/ByLCY/vellum/pipeline"
	"github.com/ByLCY/vellum/registry"
	"github.com/ByLCY/vellum/renderer"
	"github.com/ByLCY/vellum/sink"
)

// stubRenderer 同时实现 renderer.Renderer 与 layout.Typesetter，
// 每页写入固定字节，cancelAt > 0 时在渲染到该页前取消 ctx。
type stubRenderer struct {
	cancelAt int
	cancel   context.CancelFunc
}

func (s *stubRenderer) LayoutLines(content string, width float64, fontSize float64) ([]layout.TextLine, error) {
	words := strings.Fields(content)
	var lines []layout.TextLine
	for i := 0; i < len(words); i += 8 {
		end := i + 8
		if end > len(words) {
			end = len(words)
		}
		lines = append(lines, layout.TextLine{Content: strings.Join(words[i:end], " "), Height: 4.0})
	}
	if len(lines) == 0 {
		lines = []layout.TextLine{{Content: "", Height: 4.0}}
	}
	return lines, nil
}

func (s *stubRenderer) Render(ctx context.Context, plan *layout.PagePlan, out sink.Sink, opts renderer.Options) error {
	pages := plan.PageCount()
	for i := 0; i < pages; i++ {
		if s.cancelAt > 0 && i+1 == s.cancelAt && s.cancel != nil {
			s.cancel()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := out.Write([]byte("page-bytes\n")); err != nil {
			return err
		}
		if opts.OnPage != nil {
			opts.OnPage(i+1, pages)
		}
	}
	out.SetPageCount(pages)
	return nil
}

const ndaText = `NON-DISCLOSURE AGREEMENT

The parties wish to protect certain confidential information relating to intellectual property.

[SIGNATURE_BLOCK:disclosing-party-signature]
[SIGNATURE_BLOCK:receiving-party-signature]
`

func TestRunEndToEnd(t *testing.T) {
	out := sink.NewBufferSink()
	var events []pipeline.Event
	job := pipeline.Job{
		Text:     ndaText,
		DocType:  "nda-ip-specific",
		Sink:     out,
		Progress: func(e pipeline.Event) { events = append(events, e) },
	}

	res, err := pipeline.Run(context.Background(), job, &stubRenderer{})
	if err != nil {
		t.Fatalf("流水线失败: %v", err)
	}
	if res.PageCount != 1 || res.ByteLength == 0 {
		t.Errorf("结果不符: %+v", res)
	}
	if len(out.Bytes()) == 0 {
		t.Errorf("输出为空")
	}

	wantStages := []pipeline.Stage{
		pipeline.StageParse, pipeline.StageResolve, pipeline.StageRegistry,
		pipeline.StageMeasure, pipeline.StagePlan, pipeline.StageRender,
	}
	var stages []pipeline.Stage
	for _, e := range events {
		if e.Page == 0 {
			stages = append(stages, e.Stage)
		}
	}
	for i, want := range wantStages {
		if i >= len(stages) || stages[i] != want {
			t.Fatalf("阶段顺序不符: %v", stages)
		}
	}
}

func TestRunUnknownDocType(t *testing.T) {
	out := sink.NewBufferSink()
	job := pipeline.Job{Text: "hello", DocType: "mystery", Sink: out}

	_, err := pipeline.Run(context.Background(), job, &stubRenderer{})
	var ce *doctype.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("期望 ConfigError, got %v", err)
	}
	if len(out.Bytes()) != 0 {
		t.Errorf("失败后不应保留输出字节")
	}
}

func TestRunOverridesValidation(t *testing.T) {
	job := pipeline.Job{
		Text:      ndaText,
		DocType:   "nda-ip-specific",
		Overrides: doctype.Overrides{LineSpacing: "quadruple"},
		Sink:      sink.NewBufferSink(),
	}
	var ce *doctype.ConfigError
	if _, err := pipeline.Run(context.Background(), job, &stubRenderer{}); !errors.As(err, &ce) {
		t.Fatalf("非法覆盖项应报 ConfigError, got %v", err)
	}
}

func TestRunErrorsCarryDocTypeAndStage(t *testing.T) {
	out := sink.NewBufferSink()
	job := pipeline.Job{
		Text:    ndaText + "\n[SIGNATURE_BLOCK:ghost]\n",
		DocType: "nda-ip-specific",
		Sink:    out,
	}

	_, err := pipeline.Run(context.Background(), job, &stubRenderer{})
	if err == nil {
		t.Fatalf("未声明的标记应报错")
	}
	// 包装后仍可判别底层错误类型
	var ue *registry.UnknownBlockError
	if !errors.As(err, &ue) {
		t.Fatalf("包装不得丢失错误类型: %v", err)
	}
	// 错误信息携带文书类型与失败阶段
	msg := err.Error()
	if !strings.Contains(msg, "nda-ip-specific") || !strings.Contains(msg, string(pipeline.StageRegistry)) {
		t.Errorf("错误信息缺少文书类型或阶段: %q", msg)
	}
}

func TestRunCancellationDiscardsOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := sink.NewBufferSink()
	r := &stubRenderer{cancelAt: 1, cancel: cancel}
	job := pipeline.Job{Text: ndaText, DocType: "nda-ip-specific", Sink: out}

	_, err := pipeline.Run(ctx, job, r)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled, got %v", err)
	}
	if len(out.Bytes()) != 0 {
		t.Errorf("取消后不应保留输出字节: %d", len(out.Bytes()))
	}
}

func TestRunPreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := sink.NewBufferSink()
	job := pipeline.Job{Text: ndaText, DocType: "nda-ip-specific", Sink: out}
	if _, err := pipeline.Run(ctx, job, &stubRenderer{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled, got %v", err)
	}
}

func TestRunRequiresTypesetter(t *testing.T) {
	out := sink.NewBufferSink()
	job := pipeline.Job{Text: ndaText, DocType: "nda-ip-specific", Sink: out}
	if _, err := pipeline.Run(context.Background(), job, badRenderer{}); err == nil {
		t.Fatalf("不实现 Typesetter 的渲染器应被拒绝")
	}
}

type badRenderer struct{}

func (badRenderer) Render(context.Context, *layout.PagePlan, sink.Sink, renderer.Options) error {
	return nil
}
