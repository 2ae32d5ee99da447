package sink_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ByLCY/vellum/sink"
)

func TestFileSinkFinalize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")

	s, err := sink.NewFileSink(path)
	if err != nil {
		t.Fatalf("创建 FileSink 失败: %v", err)
	}
	if _, err := s.Write([]byte("%PDF-1.7 test")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	s.SetPageCount(3)

	// 提交前目标路径上不得出现文件
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("提交前目标路径已存在文件")
	}

	res, err := s.Finalize()
	if err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	if res.ByteLength != 13 || res.PageCount != 3 || res.Path != path {
		t.Errorf("结果不符: %+v", res)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "%PDF-1.7 test" {
		t.Errorf("落盘内容不符: %q, %v", data, err)
	}

	// 目录里不得残留临时文件
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("残留临时文件: %d 个条目", len(entries))
	}
}

func TestFileSinkDiscard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")

	s, err := sink.NewFileSink(path)
	if err != nil {
		t.Fatalf("创建 FileSink 失败: %v", err)
	}
	if _, err := s.Write([]byte("partial")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := s.Discard(); err != nil {
		t.Fatalf("丢弃失败: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("丢弃后目录应为空: %d 个条目", len(entries))
	}

	if _, err := s.Write([]byte("late")); err == nil {
		t.Errorf("丢弃后写入应失败")
	}
	if _, err := s.Finalize(); err == nil {
		t.Errorf("丢弃后提交应失败")
	}
}

func TestFileSinkDiscardAfterFinalizeIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")

	s, err := sink.NewFileSink(path)
	if err != nil {
		t.Fatalf("创建 FileSink 失败: %v", err)
	}
	s.Write([]byte("x"))
	if _, err := s.Finalize(); err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	if err := s.Discard(); err != nil {
		t.Fatalf("提交后丢弃应为空操作: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("提交后的产物不应被丢弃: %v", err)
	}
}

func TestBufferSink(t *testing.T) {
	s := sink.NewBufferSink()
	s.Write([]byte("abc"))
	s.Write([]byte("def"))
	s.SetPageCount(1)

	res, err := s.Finalize()
	if err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	if res.ByteLength != 6 || res.PageCount != 1 {
		t.Errorf("结果不符: %+v", res)
	}
	if string(s.Bytes()) != "abcdef" {
		t.Errorf("内容不符: %q", s.Bytes())
	}

	if _, err := s.Write([]byte("late")); err == nil {
		t.Errorf("提交后写入应失败")
	}
}

func TestBufferSinkDiscardDropsBytes(t *testing.T) {
	s := sink.NewBufferSink()
	s.Write([]byte("partial"))
	if err := s.Discard(); err != nil {
		t.Fatalf("丢弃失败: %v", err)
	}
	if len(s.Bytes()) != 0 {
		t.Errorf("丢弃后不应保留字节: %d", len(s.Bytes()))
	}
}
