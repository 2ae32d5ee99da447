package binding_test

import (
	"testing"

	"github.com/ByLCY/vellum/binding"
)

func TestInterpolate(t *testing.T) {
	cases := []struct {
		name string
		text string
		data map[string]any
		want string
	}{
		{"页码模板", "Page ${page} of ${pages}", map[string]any{"page": 2, "pages": 5}, "Page 2 of 5"},
		{"单页码", "${page}", map[string]any{"page": 1}, "1"},
		{"未知名字保留占位符", "${mystery}", map[string]any{"page": 1}, "${mystery}"},
		{"空数据原样返回", "Page ${page}", nil, "Page ${page}"},
		{"无占位符", "confidential", map[string]any{"page": 1}, "confidential"},
		{"空占位符", "${}", map[string]any{"page": 1}, "${}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := binding.Interpolate(tc.text, tc.data); got != tc.want {
				t.Errorf("got %q want %q", got, tc.want)
			}
		})
	}
}
