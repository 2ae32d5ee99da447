package fonts

import (
	"os"

	"golang.org/x/image/font/gofont/goregular"
)

// 常见系统衬线字体的查找顺序。法律文书惯用 Times 风格字体，
// 找不到时退回内置的 Go Regular。
var serifCandidates = []string{
	"/usr/share/fonts/truetype/liberation/LiberationSerif-Regular.ttf",
	"/usr/share/fonts/liberation/LiberationSerif-Regular.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSerif.ttf",
	"/usr/share/fonts/TTF/DejaVuSerif.ttf",
	"/usr/share/fonts/truetype/msttcorefonts/Times_New_Roman.ttf",
	"/Library/Fonts/Times New Roman.ttf",
	"/System/Library/Fonts/Supplemental/Times New Roman.ttf",
	"C:\\Windows\\Fonts\\times.ttf",
}

// Serif 返回正文衬线字体的字节数据。总能返回可用数据，不会失败。
func Serif() []byte {
	for _, path := range serifCandidates {
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			return data
		}
	}
	return goregular.TTF
}
