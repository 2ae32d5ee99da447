package sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Result 描述一次成功落盘的产物。
type Result struct {
	Path       string
	ByteLength int64
	PageCount  int
}

// WriteError 表示输出阶段的 IO 失败。
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("写入输出 %s 失败: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Sink 是渲染输出的落点。字节通过 io.Writer 流入；只有 Finalize
// 成功后产物才对外可见，Discard 负责清理半成品。
type Sink interface {
	io.Writer

	// SetPageCount 由渲染器在确定总页数后调用一次。
	SetPageCount(n int)

	// Finalize 提交输出并返回产物描述。提交后 Sink 不可再写。
	Finalize() (Result, error)

	// Discard 丢弃已写入的内容。对已 Finalize 的 Sink 是空操作。
	Discard() error
}

// FileSink 写入目标路径。内容先写到同目录的临时文件，Finalize 时
// fsync 后原子改名到位，保证目标路径上永远不出现半成品。
type FileSink struct {
	path      string
	tmp       *os.File
	written   int64
	pageCount int
	done      bool
}

var _ Sink = (*FileSink)(nil)

// NewFileSink 在 path 所在目录创建临时文件并返回 Sink。
func NewFileSink(path string) (*FileSink, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, &WriteError{Path: path, Err: err}
	}
	return &FileSink{path: path, tmp: tmp}, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	if s.done || s.tmp == nil {
		return 0, &WriteError{Path: s.path, Err: os.ErrClosed}
	}
	n, err := s.tmp.Write(p)
	s.written += int64(n)
	if err != nil {
		return n, &WriteError{Path: s.path, Err: err}
	}
	return n, nil
}

func (s *FileSink) SetPageCount(n int) { s.pageCount = n }

func (s *FileSink) Finalize() (Result, error) {
	if s.done {
		return Result{}, &WriteError{Path: s.path, Err: os.ErrClosed}
	}
	if err := s.tmp.Sync(); err != nil {
		s.cleanup()
		return Result{}, &WriteError{Path: s.path, Err: err}
	}
	tmpName := s.tmp.Name()
	if err := s.tmp.Close(); err != nil {
		os.Remove(tmpName)
		s.done = true
		return Result{}, &WriteError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		s.done = true
		return Result{}, &WriteError{Path: s.path, Err: err}
	}
	s.done = true
	return Result{Path: s.path, ByteLength: s.written, PageCount: s.pageCount}, nil
}

func (s *FileSink) Discard() error {
	if s.done {
		return nil
	}
	return s.cleanup()
}

func (s *FileSink) cleanup() error {
	s.done = true
	if s.tmp == nil {
		return nil
	}
	name := s.tmp.Name()
	s.tmp.Close()
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return &WriteError{Path: s.path, Err: err}
	}
	return nil
}

// BufferSink 把输出保留在内存里，用于 --stdout 与测试。
type BufferSink struct {
	buf       []byte
	pageCount int
	done      bool
}

var _ Sink = (*BufferSink)(nil)

func NewBufferSink() *BufferSink { return &BufferSink{} }

func (s *BufferSink) Write(p []byte) (int, error) {
	if s.done {
		return 0, &WriteError{Path: "<buffer>", Err: os.ErrClosed}
	}
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *BufferSink) SetPageCount(n int) { s.pageCount = n }

func (s *BufferSink) Finalize() (Result, error) {
	if s.done {
		return Result{}, &WriteError{Path: "<buffer>", Err: os.ErrClosed}
	}
	s.done = true
	return Result{Path: "<buffer>", ByteLength: int64(len(s.buf)), PageCount: s.pageCount}, nil
}

func (s *BufferSink) Discard() error {
	s.buf = nil
	s.done = true
	return nil
}

// Bytes 返回已写入的内容。仅在 Finalize 之后有意义。
func (s *BufferSink) Bytes() []byte { return s.buf }
