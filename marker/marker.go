// Package marker 负责从生成文本中扫描哨兵标记（签名/缩写/公证块），
// 并把正文切分为段落单元。解析是纯语法层面的，不感知文书类型语义。
package marker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Type identifies the marker kind embedded in generated text.
type Type string

const (
	TypeSignature Type = "signature"
	TypeInitials  Type = "initials"
	TypeNotary    Type = "notary"
)

var (
	markerLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Marker", Pattern: `\[(?:SIGNATURE|INITIALS|NOTARY)_BLOCK:[A-Za-z0-9][A-Za-z0-9_-]*\]`},
		{Name: "BadMarker", Pattern: `\[[A-Z][A-Z_]*_BLOCK[^\]]*\]?`},
		{Name: "Text", Pattern: `[^\[]+`},
		{Name: "Stray", Pattern: `\[`},
	})

	streamParser = participle.MustBuild[document](
		participle.Lexer(markerLexer),
	)
)

// document is the root grammar node: an ordered list of raw segments.
type document struct {
	Segments []*segment `parser:"@@*"`
}

// segment is either a well-formed marker, a malformed marker-looking
// fragment, or a run of plain text. Stray '[' that cannot start a marker
// is folded back into text.
type segment struct {
	Pos    lexer.Position `parser:""`
	Marker *string        `parser:"  @Marker"`
	Bad    *string        `parser:"| @BadMarker"`
	Text   *string        `parser:"| ( @Text | @Stray )"`
}

// Occurrence 记录一次标记出现：类型、id 与其在原文中的字节偏移。
type Occurrence struct {
	Type   Type
	ID     string
	Offset int
}

// TextUnit 是一个正文段落；Heading 标记短标题行，供分页孤行控制使用。
type TextUnit struct {
	Content string
	Heading bool
}

// Unit 是文档顺序中的一个原子单元：段落或标记，二者必居其一。
type Unit struct {
	Text   *TextUnit
	Marker *Occurrence
}

// Stream 是解析结果：按原文顺序排列的单元序列，标记已从正文中剔除。
type Stream struct {
	Units []Unit
}

// ParseError 表示标记语法错误（括号不配对、未知类型关键字等）。
type ParseError struct {
	Fragment string
	Offset   int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("标记语法无效：%q（字符偏移 %d）", e.Fragment, e.Offset)
}

// DuplicateError 表示同一文档内出现了重复的标记 id。
type DuplicateError struct {
	ID     string
	Offset int
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("标记 id 重复：%q（字符偏移 %d）", e.ID, e.Offset)
}

// Parse 对原始文本做单次从左到右扫描，返回段落与标记交错的 Stream。
// 标记语法：[SIGNATURE_BLOCK:<id>] / [INITIALS_BLOCK:<id>] / [NOTARY_BLOCK:<id>]。
func Parse(text string) (*Stream, error) {
	doc, err := streamParser.ParseString("", text)
	if err != nil {
		return nil, &ParseError{Fragment: firstLine(text), Offset: 0}
	}

	stream := &Stream{}
	seen := map[string]int{}
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		for _, p := range splitParagraphs(buf.String()) {
			p := p
			stream.Units = append(stream.Units, Unit{Text: &p})
		}
		buf.Reset()
	}

	for _, seg := range doc.Segments {
		switch {
		case seg.Bad != nil:
			return nil, &ParseError{Fragment: *seg.Bad, Offset: seg.Pos.Offset}
		case seg.Marker != nil:
			occ, err := parseOccurrence(*seg.Marker, seg.Pos.Offset)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[occ.ID]; ok {
				return nil, &DuplicateError{ID: occ.ID, Offset: occ.Offset}
			}
			seen[occ.ID] = occ.Offset
			flush()
			stream.Units = append(stream.Units, Unit{Marker: &occ})
		case seg.Text != nil:
			buf.WriteString(*seg.Text)
		}
	}
	flush()
	return stream, nil
}

// Markers 按文档顺序返回全部标记出现。
func (s *Stream) Markers() []Occurrence {
	var out []Occurrence
	for _, u := range s.Units {
		if u.Marker != nil {
			out = append(out, *u.Marker)
		}
	}
	return out
}

// parseOccurrence 拆解一个已通过词法校验的标记串。
func parseOccurrence(raw string, offset int) (Occurrence, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	keyword, id, ok := strings.Cut(body, ":")
	if !ok || id == "" {
		return Occurrence{}, &ParseError{Fragment: raw, Offset: offset}
	}
	var typ Type
	switch keyword {
	case "SIGNATURE_BLOCK":
		typ = TypeSignature
	case "INITIALS_BLOCK":
		typ = TypeInitials
	case "NOTARY_BLOCK":
		typ = TypeNotary
	default:
		return Occurrence{}, &ParseError{Fragment: raw, Offset: offset}
	}
	return Occurrence{Type: typ, ID: id, Offset: offset}, nil
}

// splitParagraphs 按空行切分正文，剔除空白段。
func splitParagraphs(text string) []TextUnit {
	var out []TextUnit
	for _, part := range splitOnBlankLines(text) {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, TextUnit{Content: trimmed, Heading: isHeading(trimmed)})
	}
	return out
}

func splitOnBlankLines(text string) []string {
	lines := strings.Split(text, "\n")
	var parts []string
	var cur []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				parts = append(parts, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		parts = append(parts, strings.Join(cur, "\n"))
	}
	return parts
}

// isHeading 用保守的启发式识别标题行：单行、较短、无句末标点，
// 且要么以编号开头、要么字母几乎全为大写。误判为普通段落无害，
// 只是失去 keep-with-next 保护。
func isHeading(text string) bool {
	if strings.Contains(text, "\n") {
		return false
	}
	runes := []rune(text)
	if len(runes) > 80 {
		return false
	}
	if strings.HasSuffix(text, ".") || strings.HasSuffix(text, ";") || strings.HasSuffix(text, ",") {
		return false
	}
	if startsNumbered(text) {
		return true
	}
	letters, uppers := 0, 0
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	return letters > 0 && uppers == letters
}

func startsNumbered(text string) bool {
	i := 0
	for i < len(text) && text[i] >= '0' && text[i] <= '9' {
		i++
	}
	if i == 0 {
		return false
	}
	return i < len(text) && (text[i] == '.' || text[i] == ')')
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 60 {
		text = text[:60]
	}
	return text
}
