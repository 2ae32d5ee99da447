// Package doctype 将文书类型映射为排版规则与签名块定义。
// 规则来自内嵌的 YAML 配置，解析一次后只读共享，跨并发任务安全。
package doctype

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/ByLCY/vellum/marker"
)

//go:embed defs/*.yaml
var defFS embed.FS

// Letter 页面尺寸与英寸换算（内部统一毫米）。
const (
	letterWidthMM  = 215.9
	letterHeightMM = 279.4
	inchMM         = 25.4
)

// Spacing 是行距模式。
type Spacing string

const (
	SpacingSingle  Spacing = "single"
	SpacingOneHalf Spacing = "one-half"
	SpacingDouble  Spacing = "double"
)

// Factor returns the multiplier applied to the natural line height.
func (s Spacing) Factor() float64 {
	switch s {
	case SpacingOneHalf:
		return 1.5
	case SpacingDouble:
		return 2.0
	default:
		return 1.0
	}
}

func (s Spacing) valid() bool {
	switch s {
	case SpacingSingle, SpacingOneHalf, SpacingDouble:
		return true
	}
	return false
}

// Position 是页码位置。
type Position string

const (
	PositionBottomCenter Position = "bottom-center"
	PositionBottomRight  Position = "bottom-right"
)

// Margin 以毫米为单位。
type Margin struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// PageNumbers 描述页码开关、位置与文本模板（模板中可引用 ${page}/${pages}）。
type PageNumbers struct {
	Enabled  bool
	Position Position
	Template string
}

// Rules 是一个任务的排版规则，解析后不可变。
type Rules struct {
	DocType     string
	PageWidth   float64 // mm
	PageHeight  float64 // mm
	Margin      Margin
	FontSize    float64 // pt
	LineSpacing Spacing
	PageNumbers PageNumbers
}

// ContentWidth 返回正文可用宽度（mm）。
func (r Rules) ContentWidth() float64 {
	return r.PageWidth - r.Margin.Left - r.Margin.Right
}

// ContentHeight 返回正文名义高度（mm），不含安全余量。
func (r Rules) ContentHeight() float64 {
	return r.PageHeight - r.Margin.Top - r.Margin.Bottom
}

// BlockKind 区分块定义的两种形态（显式 kind 判别，消费方必须穷举）。
type BlockKind string

const (
	// KindStandard 携带当事人元数据与完整字段行。
	KindStandard BlockKind = "standard"
	// KindSimple 是扁平简化形态：只有署名线与日期行，无当事人元数据。
	KindSimple BlockKind = "simple"
)

// Field 是签名块内的一行字段。
type Field struct {
	Name     string `yaml:"name"`
	Label    string `yaml:"label"`
	Required bool   `yaml:"required"`
}

// Party 描述签署方的角色与抬头。
type Party struct {
	Role  string `yaml:"role"`
	Label string `yaml:"label"`
}

// LayoutDirective 描述块的排布指令。
type LayoutDirective struct {
	Mode       string `yaml:"mode"` // standalone / side-by-side
	GroupID    string `yaml:"groupId"`
	Repeatable bool   `yaml:"repeatable"`
}

// BlockDef 是文书类型声明的一个签名/缩写/公证块。
type BlockDef struct {
	ID       string          `yaml:"id"`
	Kind     BlockKind       `yaml:"kind"`
	Type     marker.Type     `yaml:"type"`
	Required bool            `yaml:"required"`
	Party    Party           `yaml:"party"`
	Fields   []Field         `yaml:"fields"`
	Layout   LayoutDirective `yaml:"layout"`
}

// ConfigError 表示文书类型未知或其配置结构非法。
type ConfigError struct {
	DocType string
	Field   string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("文书类型 %q 配置无效：%s", e.DocType, e.Reason)
	}
	return fmt.Sprintf("文书类型 %q 配置无效：字段 %s %s", e.DocType, e.Field, e.Reason)
}

// 配置文件的 YAML 形态。严格模式解码，未知字段视为结构错误。
type configFile struct {
	Type       string         `yaml:"type"`
	Formatting formattingYAML `yaml:"formatting"`
	Blocks     []BlockDef     `yaml:"blocks"`
}

type formattingYAML struct {
	PageSize    string          `yaml:"pageSize"`
	Margins     marginsYAML     `yaml:"margins"` // inches
	FontSize    float64         `yaml:"fontSize"`
	LineSpacing Spacing         `yaml:"lineSpacing"`
	PageNumbers pageNumbersYAML `yaml:"pageNumbers"`
}

type marginsYAML struct {
	Top    float64 `yaml:"top"`
	Bottom float64 `yaml:"bottom"`
	Left   float64 `yaml:"left"`
	Right  float64 `yaml:"right"`
}

type pageNumbersYAML struct {
	Enabled  *bool    `yaml:"enabled"`
	Position Position `yaml:"position"`
	Template string   `yaml:"template"`
}

type entry struct {
	rules Rules
	defs  []BlockDef
}

var (
	loadOnce sync.Once
	table    map[string]entry
	loadErr  error
)

func load() {
	table = map[string]entry{}
	files, err := defFS.ReadDir("defs")
	if err != nil {
		loadErr = fmt.Errorf("读取内嵌文书类型配置失败: %w", err)
		return
	}
	for _, f := range files {
		data, err := defFS.ReadFile("defs/" + f.Name())
		if err != nil {
			loadErr = fmt.Errorf("读取内嵌配置 %s 失败: %w", f.Name(), err)
			return
		}
		var cf configFile
		if err := yaml.UnmarshalWithOptions(data, &cf, yaml.Strict()); err != nil {
			loadErr = &ConfigError{DocType: f.Name(), Reason: fmt.Sprintf("YAML 解析失败：%v", err)}
			return
		}
		ent, err := buildEntry(cf)
		if err != nil {
			loadErr = err
			return
		}
		table[cf.Type] = ent
	}
}

func buildEntry(cf configFile) (entry, error) {
	if strings.TrimSpace(cf.Type) == "" {
		return entry{}, &ConfigError{DocType: cf.Type, Field: "type", Reason: "不能为空"}
	}
	rules, err := buildRules(cf)
	if err != nil {
		return entry{}, err
	}
	if err := validateBlocks(cf.Type, cf.Blocks); err != nil {
		return entry{}, err
	}
	return entry{rules: rules, defs: cf.Blocks}, nil
}

func buildRules(cf configFile) (Rules, error) {
	f := cf.Formatting
	switch strings.ToLower(f.PageSize) {
	case "", "letter":
	default:
		return Rules{}, &ConfigError{DocType: cf.Type, Field: "pageSize", Reason: fmt.Sprintf("不支持的值 %q", f.PageSize)}
	}
	if f.Margins.Top < 0 || f.Margins.Bottom < 0 || f.Margins.Left < 0 || f.Margins.Right < 0 {
		return Rules{}, &ConfigError{DocType: cf.Type, Field: "margins", Reason: "不能为负"}
	}
	fontSize := f.FontSize
	if fontSize == 0 {
		fontSize = 12
	}
	if fontSize < 0 {
		return Rules{}, &ConfigError{DocType: cf.Type, Field: "fontSize", Reason: "必须大于零"}
	}
	spacing := f.LineSpacing
	if spacing == "" {
		spacing = SpacingSingle
	}
	if !spacing.valid() {
		return Rules{}, &ConfigError{DocType: cf.Type, Field: "lineSpacing", Reason: fmt.Sprintf("未知模式 %q", f.LineSpacing)}
	}
	pn := PageNumbers{Enabled: true, Position: PositionBottomCenter, Template: "${page}"}
	if f.PageNumbers.Enabled != nil {
		pn.Enabled = *f.PageNumbers.Enabled
	}
	if f.PageNumbers.Position != "" {
		switch f.PageNumbers.Position {
		case PositionBottomCenter, PositionBottomRight:
			pn.Position = f.PageNumbers.Position
		default:
			return Rules{}, &ConfigError{DocType: cf.Type, Field: "pageNumbers.position", Reason: fmt.Sprintf("未知位置 %q", f.PageNumbers.Position)}
		}
	}
	if f.PageNumbers.Template != "" {
		pn.Template = f.PageNumbers.Template
	}

	margin := Margin{
		Top:    defaultInch(f.Margins.Top) * inchMM,
		Bottom: defaultInch(f.Margins.Bottom) * inchMM,
		Left:   defaultInch(f.Margins.Left) * inchMM,
		Right:  defaultInch(f.Margins.Right) * inchMM,
	}

	return Rules{
		DocType:     cf.Type,
		PageWidth:   letterWidthMM,
		PageHeight:  letterHeightMM,
		Margin:      margin,
		FontSize:    fontSize,
		LineSpacing: spacing,
		PageNumbers: pn,
	}, nil
}

// defaultInch 将省略（0）的边距回填为 1 英寸默认值。
// 配置若要表达真正的 0 边距，须显式给出极小正值；法律文书不存在该需求。
func defaultInch(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

func validateBlocks(docType string, defs []BlockDef) error {
	seen := map[string]bool{}
	groupCount := map[string]int{}
	for _, d := range defs {
		if strings.TrimSpace(d.ID) == "" {
			return &ConfigError{DocType: docType, Field: "blocks.id", Reason: "不能为空"}
		}
		if seen[d.ID] {
			return &ConfigError{DocType: docType, Field: "blocks.id", Reason: fmt.Sprintf("重复定义 %q", d.ID)}
		}
		seen[d.ID] = true

		switch d.Type {
		case marker.TypeSignature, marker.TypeInitials, marker.TypeNotary:
		default:
			return &ConfigError{DocType: docType, Field: "blocks.type", Reason: fmt.Sprintf("块 %q 类型 %q 未知", d.ID, d.Type)}
		}

		// kind 判别必须穷举：standard 要求当事人抬头，simple 禁止分组。
		switch d.Kind {
		case KindStandard:
			if d.Party.Label == "" {
				return &ConfigError{DocType: docType, Field: "blocks.party.label", Reason: fmt.Sprintf("standard 块 %q 缺少抬头", d.ID)}
			}
		case KindSimple:
			if d.Layout.GroupID != "" {
				return &ConfigError{DocType: docType, Field: "blocks.layout.groupId", Reason: fmt.Sprintf("simple 块 %q 不支持分组", d.ID)}
			}
		default:
			return &ConfigError{DocType: docType, Field: "blocks.kind", Reason: fmt.Sprintf("块 %q 形态 %q 未知", d.ID, d.Kind)}
		}

		switch d.Layout.Mode {
		case "", "standalone":
		case "side-by-side":
			if d.Layout.GroupID == "" {
				return &ConfigError{DocType: docType, Field: "blocks.layout.groupId", Reason: fmt.Sprintf("side-by-side 块 %q 缺少 groupId", d.ID)}
			}
			groupCount[d.Layout.GroupID]++
		default:
			return &ConfigError{DocType: docType, Field: "blocks.layout.mode", Reason: fmt.Sprintf("块 %q 模式 %q 未知", d.ID, d.Layout.Mode)}
		}
		if d.Layout.Repeatable && d.Layout.GroupID != "" {
			return &ConfigError{DocType: docType, Field: "blocks.layout", Reason: fmt.Sprintf("块 %q 不能同时声明 repeatable 与 groupId", d.ID)}
		}
	}
	for gid, n := range groupCount {
		if n < 2 {
			return &ConfigError{DocType: docType, Field: "blocks.layout.groupId", Reason: fmt.Sprintf("分组 %q 至少需要两个成员", gid)}
		}
	}
	return nil
}

// Resolve 返回文书类型的排版规则。解析是纯函数：同一类型总是得到相同规则。
func Resolve(docType string) (Rules, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return Rules{}, loadErr
	}
	ent, ok := table[docType]
	if !ok {
		return Rules{}, &ConfigError{DocType: docType, Reason: "未知的文书类型"}
	}
	return ent.rules, nil
}

// Definitions 返回文书类型声明的块定义。返回的切片只读共享，调用方不得修改。
func Definitions(docType string) ([]BlockDef, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	ent, ok := table[docType]
	if !ok {
		return nil, &ConfigError{DocType: docType, Reason: "未知的文书类型"}
	}
	return ent.defs, nil
}

// Types 返回全部内建文书类型（升序），供 CLI 帮助信息使用。
func Types() []string {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil
	}
	out := make([]string, 0, len(table))
	for t := range table {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Overrides 是命令行覆盖项；零值字段表示保持类型默认。
type Overrides struct {
	FontSize     float64 // pt
	LineSpacing  Spacing
	MarginInches float64 // 四边统一
	PageNumbers  *bool
}

type overridesYAML struct {
	FontSize    float64 `yaml:"fontSize"`
	LineSpacing Spacing `yaml:"lineSpacing"`
	Margins     float64 `yaml:"margins"` // inches，四边统一
	PageNumbers *bool   `yaml:"pageNumbers"`
}

// ParseOverrides 解析用户提供的 YAML 覆盖文件。严格模式解码，
// 未知字段按配置错误处理；取值校验推迟到 Apply。
func ParseOverrides(data []byte) (Overrides, error) {
	var oy overridesYAML
	if err := yaml.UnmarshalWithOptions(data, &oy, yaml.Strict()); err != nil {
		return Overrides{}, &ConfigError{DocType: "overrides", Reason: fmt.Sprintf("YAML 解析失败：%v", err)}
	}
	return Overrides{
		FontSize:     oy.FontSize,
		LineSpacing:  oy.LineSpacing,
		MarginInches: oy.Margins,
		PageNumbers:  oy.PageNumbers,
	}, nil
}

// Apply 在已解析规则上合并覆盖项，校验与基础配置一致。
func (o Overrides) Apply(r Rules) (Rules, error) {
	if o.FontSize != 0 {
		if o.FontSize < 0 {
			return Rules{}, &ConfigError{DocType: r.DocType, Field: "fontSize", Reason: "必须大于零"}
		}
		r.FontSize = o.FontSize
	}
	if o.LineSpacing != "" {
		if !o.LineSpacing.valid() {
			return Rules{}, &ConfigError{DocType: r.DocType, Field: "lineSpacing", Reason: fmt.Sprintf("未知模式 %q", o.LineSpacing)}
		}
		r.LineSpacing = o.LineSpacing
	}
	if o.MarginInches != 0 {
		if o.MarginInches < 0 {
			return Rules{}, &ConfigError{DocType: r.DocType, Field: "margins", Reason: "不能为负"}
		}
		m := o.MarginInches * inchMM
		r.Margin = Margin{Top: m, Right: m, Bottom: m, Left: m}
	}
	if o.PageNumbers != nil {
		r.PageNumbers.Enabled = *o.PageNumbers
	}
	return r, nil
}
