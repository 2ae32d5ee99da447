package layout

import (
	"fmt"

	"github.com/ByLCY/vellum/marker"
	"github.com/ByLCY/vellum/registry"
)

// Assemble 把解析出的段落流与块注册表交织为按文档顺序排列的内容单元。
// 块组锚定在其首个成员标记出现处，其余成员标记被吸收：side-by-side 的
// 两方从同一条目发出，据此保证同页同偏移。
func Assemble(stream *marker.Stream, reg *registry.Registry) []ContentBlock {
	var out []ContentBlock
	paraSeq := 0
	for _, u := range stream.Units {
		switch {
		case u.Text != nil:
			paraSeq++
			kind := KindParagraph
			if u.Text.Heading {
				kind = KindHeading
			}
			out = append(out, ContentBlock{
				ID:   fmt.Sprintf("para-%d", paraSeq),
				Kind: kind,
				Text: u.Text.Content,
			})
		case u.Marker != nil:
			if !reg.Anchored(u.Marker.ID) {
				continue
			}
			g, ok := reg.GroupFor(u.Marker.ID)
			if !ok {
				continue
			}
			grp := g
			out = append(out, ContentBlock{
				ID:    grp.ID,
				Kind:  KindGroup,
				Group: &grp,
			})
		}
	}
	return out
}
