package canvasrenderer

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"

	"github.com/ByLCY/vellum/binding"
	"github.com/ByLCY/vellum/doctype"
	"github.com/ByLCY/vellum/fonts"
	"github.com/ByLCY/vellum/layout"
	"github.com/ByLCY/vellum/renderer"
	"github.com/ByLCY/vellum/sink"
)

const ruleWidth = 0.3

// fieldRuleGap 是字段标签与填写横线之间的间距（mm）。
const fieldRuleGap = 2.0

var ink = color.RGBA{R: 30, G: 30, B: 30, A: 255}

// Renderer 通过 github.com/tdewolff/canvas 把分页计划绘制为 PDF。
// 它同时实现 layout.Typesetter：测量与绘制共用同一套字体度量，
// 保证两遍结果一致。
type Renderer struct {
	fontOnce sync.Once
	family   *canvas.FontFamily
	fontErr  error
}

var (
	_ renderer.Renderer = (*Renderer)(nil)
	_ layout.Typesetter = (*Renderer)(nil)
)

// New 创建 canvas 渲染器。正文字体在首次使用时加载。
func New() *Renderer { return &Renderer{} }

func (r *Renderer) face(sizePt float64) (*canvas.FontFace, error) {
	r.fontOnce.Do(func() {
		family := canvas.NewFontFamily("vellum-serif")
		if err := family.LoadFont(fonts.Serif(), 0, canvas.FontRegular); err != nil {
			r.fontErr = fmt.Errorf("加载正文字体失败: %w", err)
			return
		}
		r.family = family
	})
	if r.fontErr != nil {
		return nil, r.fontErr
	}
	return r.family.Face(sizePt, ink, canvas.FontRegular, canvas.FontNormal), nil
}

// LayoutLines 实现 layout.Typesetter 接口，使用贪心换行算法。
// 约定：width 入参与返回的行宽/行高均按 mm 处理，fontSize 为 pt。
func (r *Renderer) LayoutLines(content string, width float64, fontSize float64) ([]layout.TextLine, error) {
	face, err := r.face(fontSize)
	if err != nil {
		return nil, err
	}
	lines := greedyWrap(content, width, face)
	natural := face.Metrics().LineHeight
	if len(lines) == 0 {
		lines = []layout.TextLine{{Content: ""}}
	}
	for i := range lines {
		lines[i].Height = natural
	}
	return lines, nil
}

// Render 按计划逐页绘制并写入 out。页与页之间响应取消；
// 输出侧的 IO 失败通过包装的 writer 捕获后整体返回。
func (r *Renderer) Render(ctx context.Context, plan *layout.PagePlan, out sink.Sink, opts renderer.Options) error {
	if plan == nil || len(plan.Pages) == 0 {
		return fmt.Errorf("缺少可渲染的页面")
	}
	rules := plan.Rules
	face, err := r.face(rules.FontSize)
	if err != nil {
		return err
	}

	ew := &errWriter{w: out}
	writer := pdf.New(ew, rules.PageWidth, rules.PageHeight, nil)
	writer.SetInfo(rules.DocType, "", "", "", "vellum")

	pages := plan.PageCount()
	for i, page := range plan.Pages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if i > 0 {
			writer.NewPage(rules.PageWidth, rules.PageHeight)
		}
		c := canvas.New(rules.PageWidth, rules.PageHeight)
		cv := canvas.NewContext(c)
		cv.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点

		for _, e := range page.Entries {
			switch e.Block.Kind {
			case layout.KindGroup:
				r.drawGroup(cv, rules, e, face)
			default:
				r.drawText(cv, rules, e, face)
			}
		}
		if rules.PageNumbers.Enabled {
			r.drawPageNumber(cv, rules, face, i+1, pages)
		}

		c.RenderTo(writer)
		if opts.OnPage != nil {
			opts.OnPage(i+1, pages)
		}
	}

	out.SetPageCount(pages)
	if err := writer.Close(); err != nil {
		return fmt.Errorf("写入 PDF 失败: %w", err)
	}
	if ew.err != nil {
		return ew.err
	}
	return nil
}

func (r *Renderer) drawText(cv *canvas.Context, rules doctype.Rules, e layout.Entry, face *canvas.FontFace) {
	metrics := face.Metrics()
	cursorY := e.Y
	for _, line := range e.Lines {
		if line.Content != "" {
			// 基线位置：行顶部加上字体上升部
			cv.DrawText(rules.Margin.Left, cursorY+metrics.Ascent, canvas.NewTextLine(face, line.Content, canvas.Left))
		}
		cursorY += e.LineAdvance
	}
}

// drawGroup 绘制一个签名/缩写/公证块组。side-by-side 组的各列横向
// 平行排布；每列从上到下依次是抬头、署名横线与字段行。
func (r *Renderer) drawGroup(cv *canvas.Context, rules doctype.Rules, e layout.Entry, face *canvas.FontFace) {
	metrics := face.Metrics()
	gutter := 0.0
	if n := len(e.Columns); n > 1 {
		gutter = (rules.ContentWidth() - float64(n)*e.ColumnWidth) / float64(n-1)
	}
	for idx, col := range e.Columns {
		x := rules.Margin.Left + float64(idx)*(e.ColumnWidth+gutter)
		member := col.Member

		if member.Kind == doctype.KindStandard && member.Party.Label != "" {
			cv.DrawText(x, e.Y+metrics.Ascent, canvas.NewTextLine(face, member.Party.Label+":", canvas.Left))
		}

		// 署名横线画在字段行之上，位置由列高反推，与测量公式一致。
		ruleY := e.Y + col.Height - float64(len(member.Fields))*e.LineAdvance
		r.drawRule(cv, x, ruleY, e.ColumnWidth)

		cursorY := ruleY
		for _, field := range member.Fields {
			label := field.Label + ": "
			cv.DrawText(x, cursorY+metrics.Ascent, canvas.NewTextLine(face, label, canvas.Left))
			start := x + face.TextWidth(label) + fieldRuleGap
			if start < x+e.ColumnWidth {
				r.drawRule(cv, start, cursorY+e.LineAdvance, x+e.ColumnWidth-start)
			}
			cursorY += e.LineAdvance
		}
	}
}

func (r *Renderer) drawRule(cv *canvas.Context, x, y, width float64) {
	cv.SetStrokeColor(ink)
	cv.SetStrokeWidth(ruleWidth)
	p := &canvas.Path{}
	p.MoveTo(0, 0)
	p.LineTo(width, 0)
	cv.DrawPath(x, y, p)
}

func (r *Renderer) drawPageNumber(cv *canvas.Context, rules doctype.Rules, face *canvas.FontFace, page, pages int) {
	text := binding.Interpolate(rules.PageNumbers.Template, map[string]any{
		"page":  page,
		"pages": pages,
	})
	// 页码落在下边距的垂直中线上
	y := rules.PageHeight - rules.Margin.Bottom/2
	switch rules.PageNumbers.Position {
	case doctype.PositionBottomRight:
		cv.DrawText(rules.PageWidth-rules.Margin.Right, y, canvas.NewTextLine(face, text, canvas.Right))
	default:
		cv.DrawText(rules.PageWidth/2, y, canvas.NewTextLine(face, text, canvas.Center))
	}
}

// errWriter 记住第一个写失败。pdf 包内部会吞掉部分写错误，
// 这里在 Close 之后统一检查。
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	if err != nil {
		ew.err = err
	}
	return n, err
}

func greedyWrap(content string, width float64, face *canvas.FontFace) []layout.TextLine {
	limit := width
	if limit <= 0 {
		limit = math.MaxFloat64
	}

	tokens := tokenizeContent(content)
	var lines []layout.TextLine
	var builder strings.Builder
	currentWidth := 0.0

	emit := func(force bool) {
		if builder.Len() == 0 {
			if force {
				lines = append(lines, layout.TextLine{Content: "", Width: 0})
			}
			return
		}
		lines = append(lines, layout.TextLine{
			Content: strings.TrimRight(builder.String(), " \t"),
			Width:   currentWidth,
		})
		builder.Reset()
		currentWidth = 0
	}

	appendToken := func(token string) {
		if builder.Len() == 0 && strings.TrimSpace(token) == "" {
			return // 行首空白不上行
		}
		builder.WriteString(token)
		currentWidth += face.TextWidth(token)
	}

	for _, token := range tokens {
		if token == "\n" {
			emit(true)
			continue
		}

		tokenWidth := face.TextWidth(token)
		if currentWidth > 0 && currentWidth+tokenWidth > limit {
			emit(false)
		}
		if tokenWidth <= limit {
			appendToken(token)
			continue
		}

		for _, chunk := range splitTokenByWidth(token, limit, face) {
			chunkWidth := face.TextWidth(chunk)
			if currentWidth > 0 && currentWidth+chunkWidth > limit {
				emit(false)
			}
			appendToken(chunk)
		}
	}

	emit(false)
	return lines
}

func tokenizeContent(s string) []string {
	var tokens []string
	var builder strings.Builder
	lastWasSpace := false
	flush := func() {
		if builder.Len() == 0 {
			return
		}
		tokens = append(tokens, builder.String())
		builder.Reset()
	}

	for _, r := range s {
		if r == '\r' {
			continue
		}
		if r == '\n' {
			flush()
			tokens = append(tokens, "\n")
			lastWasSpace = false
			continue
		}
		isSpace := unicode.IsSpace(r)
		if builder.Len() == 0 {
			lastWasSpace = isSpace
		} else if lastWasSpace != isSpace {
			flush()
			lastWasSpace = isSpace
		}
		builder.WriteRune(r)
	}
	flush()
	return tokens
}

func splitTokenByWidth(token string, limit float64, face *canvas.FontFace) []string {
	if limit <= 0 || limit == math.MaxFloat64 {
		return []string{token}
	}
	var parts []string
	var builder strings.Builder
	for _, r := range token {
		builder.WriteRune(r)
		if face.TextWidth(builder.String()) > limit && builder.Len() > 1 {
			runes := []rune(builder.String())
			parts = append(parts, string(runes[:len(runes)-1]))
			builder.Reset()
			builder.WriteRune(r)
		}
	}
	if builder.Len() > 0 {
		parts = append(parts, builder.String())
	}
	return parts
}
