package main

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/ByLCY/vellum/doctype"
	"github.com/ByLCY/vellum/layout"
	"github.com/ByLCY/vellum/marker"
	"github.com/ByLCY/vellum/registry"
	"github.com/ByLCY/vellum/sink"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"成功", nil, exitSuccess},
		{"一般错误", fmt.Errorf("boom"), exitGeneral},
		{"标记语法", &marker.ParseError{Fragment: "[X"}, exitUsage},
		{"重复标记", &marker.DuplicateError{ID: "sig"}, exitUsage},
		{"类型配置", &doctype.ConfigError{DocType: "x"}, exitUsage},
		{"未知块", &registry.UnknownBlockError{ID: "ghost"}, exitUsage},
		{"缺失块", &registry.MissingBlockError{ID: "sig"}, exitUsage},
		{"块溢出", &layout.BlockOverflowError{BlockID: "sig"}, exitOverflow},
		{"写失败", &sink.WriteError{Path: "out.pdf", Err: os.ErrPermission}, exitIO},
		{"文件不存在", fmt.Errorf("读取失败: %w", os.ErrNotExist), exitIO},
		{"取消", context.Canceled, exitCancelled},
		{"包装后的取消", fmt.Errorf("渲染: %w", context.Canceled), exitCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCodeFor(tc.err); got != tc.want {
				t.Errorf("got %d want %d", got, tc.want)
			}
		})
	}
}
