// Package registry 把解析出的标记与文书类型声明的块定义对齐，
// 产出经过校验的块分组：side-by-side 成员合并为一个原子组，
// repeatable 定义按文本中的实际出现次数展开。
package registry

import (
	"fmt"
	"strings"

	"github.com/ByLCY/vellum/doctype"
	"github.com/ByLCY/vellum/marker"
)

// Block 是一个已解析的具体块实例。repeatable 定义展开后，ID 为标记实例 id。
type Block struct {
	ID     string
	DefID  string
	Type   marker.Type
	Kind   doctype.BlockKind
	Party  doctype.Party
	Fields []doctype.Field
}

// Group 是布局与分页的原子单位：一个或多个必须同页同行放置的块。
// 签名/缩写/公证组一律 keep-together，不允许跨页拆分。
type Group struct {
	ID         string
	SideBySide bool
	Members    []Block
}

// Registry 是对齐后的结果，按文档顺序保存块组。
type Registry struct {
	DocType  string
	groups   []Group
	byMarker map[string]int // 标记 id -> 组下标
	order    []string       // 标记 id，按文档出现顺序
}

// UnknownBlockError 表示文本中的标记 id 未在文书类型中声明。
type UnknownBlockError struct {
	DocType string
	ID      string
}

func (e *UnknownBlockError) Error() string {
	return fmt.Sprintf("文书类型 %q 未声明块 %q，标记无法解析", e.DocType, e.ID)
}

// MissingBlockError 表示必需的块未在文本中出现。缺少当事人签署块的
// 法律文书是无效产物，因此这是硬错误而非警告。
type MissingBlockError struct {
	DocType string
	ID      string
}

func (e *MissingBlockError) Error() string {
	return fmt.Sprintf("文书类型 %q 要求的块 %q 未在文本中出现", e.DocType, e.ID)
}

// Build 校验标记与定义的一致性并产出 Registry。
func Build(docType string, stream *marker.Stream, defs []doctype.BlockDef) (*Registry, error) {
	byID := make(map[string]*doctype.BlockDef, len(defs))
	for i := range defs {
		byID[defs[i].ID] = &defs[i]
	}

	reg := &Registry{DocType: docType, byMarker: map[string]int{}}
	groupIdx := map[string]int{} // groupId -> 组下标
	seenDef := map[string]int{}  // 定义 id -> 出现次数

	for _, occ := range stream.Markers() {
		def := resolveDef(occ.ID, byID)
		if def == nil {
			return nil, &UnknownBlockError{DocType: docType, ID: occ.ID}
		}
		if def.Type != occ.Type {
			return nil, &UnknownBlockError{DocType: docType, ID: occ.ID}
		}
		seenDef[def.ID]++
		reg.order = append(reg.order, occ.ID)

		blk := Block{
			ID:     occ.ID,
			DefID:  def.ID,
			Type:   def.Type,
			Kind:   def.Kind,
			Party:  def.Party,
			Fields: def.Fields,
		}

		if gid := def.Layout.GroupID; gid != "" {
			idx, ok := groupIdx[gid]
			if !ok {
				// 组锚定在首个成员出现处，后续成员并入同一条目。
				idx = len(reg.groups)
				groupIdx[gid] = idx
				reg.groups = append(reg.groups, Group{ID: gid, SideBySide: def.Layout.Mode == "side-by-side"})
			}
			reg.groups[idx].Members = append(reg.groups[idx].Members, blk)
			reg.byMarker[occ.ID] = idx
			continue
		}

		// standalone 与 repeatable 实例各自成组。
		reg.byMarker[occ.ID] = len(reg.groups)
		reg.groups = append(reg.groups, Group{ID: occ.ID, Members: []Block{blk}})
	}

	// 必需块缺失与分组人数校验。
	declared := map[string]int{}
	for _, d := range defs {
		if d.Layout.GroupID != "" {
			declared[d.Layout.GroupID]++
		}
		if !d.Required {
			continue
		}
		if seenDef[d.ID] == 0 {
			return nil, &MissingBlockError{DocType: docType, ID: d.ID}
		}
	}
	for gid, want := range declared {
		idx, ok := groupIdx[gid]
		if !ok {
			continue // 整组未出现；必需成员已由上面的检查兜底
		}
		if got := len(reg.groups[idx].Members); got != want {
			missing := firstAbsentMember(gid, defs, seenDef)
			return nil, &MissingBlockError{DocType: docType, ID: missing}
		}
	}

	return reg, nil
}

// resolveDef 精确匹配定义 id；匹配失败时尝试 repeatable 定义的
// 实例号形式 <defID>-<n>（n 为十进制序号）。
func resolveDef(id string, byID map[string]*doctype.BlockDef) *doctype.BlockDef {
	if def, ok := byID[id]; ok {
		return def
	}
	dash := strings.LastIndexByte(id, '-')
	if dash <= 0 || dash == len(id)-1 {
		return nil
	}
	base, suffix := id[:dash], id[dash+1:]
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return nil
		}
	}
	def, ok := byID[base]
	if !ok || !def.Layout.Repeatable {
		return nil
	}
	return def
}

func firstAbsentMember(gid string, defs []doctype.BlockDef, seen map[string]int) string {
	for _, d := range defs {
		if d.Layout.GroupID == gid && seen[d.ID] == 0 {
			return d.ID
		}
	}
	return gid
}

// Groups 按文档顺序返回全部块组。
func (r *Registry) Groups() []Group {
	return r.groups
}

// GroupFor 返回标记 id 所属的组。
func (r *Registry) GroupFor(markerID string) (Group, bool) {
	idx, ok := r.byMarker[markerID]
	if !ok {
		return Group{}, false
	}
	return r.groups[idx], true
}

// MarkerIDs 按文档顺序返回全部已解析的标记 id（往返校验用）。
// 分组成员可能与其他标记交错出现，因此顺序以原文为准而非分组。
func (r *Registry) MarkerIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Anchored 判断组是否应在该标记处落位：组只在首个成员的标记处
// 进入内容序列，其余成员的标记位置被吸收。
func (r *Registry) Anchored(markerID string) bool {
	idx, ok := r.byMarker[markerID]
	if !ok {
		return false
	}
	g := r.groups[idx]
	return len(g.Members) > 0 && g.Members[0].ID == markerID
}
