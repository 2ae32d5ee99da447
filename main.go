package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ByLCY/vellum/doctype"
	"github.com/ByLCY/vellum/layout"
	"github.com/ByLCY/vellum/marker"
	"github.com/ByLCY/vellum/pipeline"
	"github.com/ByLCY/vellum/registry"
	canvasrenderer "github.com/ByLCY/vellum/renderer/canvas"
	"github.com/ByLCY/vellum/sink"
)

// 退出码遵循 Unix 惯例：0 成功，1 一般错误，2 输入/配置校验失败。
const (
	exitSuccess   = 0
	exitGeneral   = 1
	exitUsage     = 2
	exitIO        = 3
	exitOverflow  = 4
	exitCancelled = 5
)

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}
	switch os.Args[1] {
	case "export":
		runExport(os.Args[2:])
	case "types":
		for _, t := range doctype.Types() {
			fmt.Println(t)
		}
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "未知子命令 %q\n", os.Args[1])
		usage()
		os.Exit(exitUsage)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `用法:
  vellum export <输入文本文件> <输出 PDF 路径> --type <文书类型> [选项]
  vellum types

选项:
      --type string          文书类型（必填，vellum types 列出全部）
      --font-size float      覆盖字号（pt）
      --line-spacing string  覆盖行距（single/one-half/double）
      --margin float         覆盖四边边距（英寸）
      --page-numbers         覆盖页码开关
      --overrides string     YAML 覆盖文件路径（标志优先于文件）
      --debug string         分页结果调试 JSON 输出路径
      --stdout               将 PDF 写到标准输出而不是文件
  -q, --quiet                不输出进度
`)
}

func runExport(args []string) {
	flags := pflag.NewFlagSet("export", pflag.ContinueOnError)
	docType := flags.String("type", "", "文书类型")
	fontSize := flags.Float64("font-size", 0, "覆盖字号（pt）")
	lineSpacing := flags.String("line-spacing", "", "覆盖行距")
	margin := flags.Float64("margin", 0, "覆盖边距（英寸）")
	pageNumbers := flags.Bool("page-numbers", false, "覆盖页码开关")
	overridesFile := flags.String("overrides", "", "YAML 覆盖文件路径")
	debugPath := flags.String("debug", "", "调试 JSON 路径")
	toStdout := flags.Bool("stdout", false, "写到标准输出")
	quiet := flags.BoolP("quiet", "q", false, "不输出进度")
	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	rest := flags.Args()
	if *docType == "" || len(rest) < 1 || (!*toStdout && len(rest) < 2) {
		usage()
		os.Exit(exitUsage)
	}
	inputPath := rest[0]

	text, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取输入 %s 失败: %v\n", inputPath, err)
		os.Exit(exitIO)
	}

	var overrides doctype.Overrides
	if *overridesFile != "" {
		data, err := os.ReadFile(*overridesFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "读取覆盖文件 %s 失败: %v\n", *overridesFile, err)
			os.Exit(exitIO)
		}
		overrides, err = doctype.ParseOverrides(data)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitUsage)
		}
	}
	// 命令行标志优先于覆盖文件
	if *fontSize != 0 {
		overrides.FontSize = *fontSize
	}
	if *lineSpacing != "" {
		overrides.LineSpacing = doctype.Spacing(*lineSpacing)
	}
	if *margin != 0 {
		overrides.MarginInches = *margin
	}
	if flags.Changed("page-numbers") {
		overrides.PageNumbers = pageNumbers
	}

	var out sink.Sink
	var bufOut *sink.BufferSink
	if *toStdout {
		bufOut = sink.NewBufferSink()
		out = bufOut
	} else {
		fs, err := sink.NewFileSink(rest[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitIO)
		}
		out = fs
	}

	job := pipeline.Job{
		Text:          string(text),
		DocType:       *docType,
		Overrides:     overrides,
		Sink:          out,
		DebugPlanPath: *debugPath,
	}
	if !*quiet {
		job.Progress = func(e pipeline.Event) {
			if e.Stage == pipeline.StageRender && e.Page > 0 {
				fmt.Fprintf(os.Stderr, "渲染第 %d/%d 页\n", e.Page, e.Pages)
			} else {
				fmt.Fprintf(os.Stderr, "阶段: %s\n", e.Stage)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.Run(ctx, job, canvasrenderer.New())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}

	if bufOut != nil {
		if _, err := os.Stdout.Write(bufOut.Bytes()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitIO)
		}
	} else if !*quiet {
		fmt.Fprintf(os.Stderr, "已生成 %s（%d 页，%d 字节）\n", result.Path, result.PageCount, result.ByteLength)
	}
}

// exitCodeFor 把错误映射为退出码。依赖各层用 errors 包可判别的
// 错误类型，包装时必须保留 %w 链。
func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return exitCancelled
	}

	var overflow *layout.BlockOverflowError
	if errors.As(err, &overflow) {
		return exitOverflow
	}

	var writeErr *sink.WriteError
	if errors.As(err, &writeErr) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return exitIO
	}

	var (
		parseErr   *marker.ParseError
		dupErr     *marker.DuplicateError
		configErr  *doctype.ConfigError
		unknownErr *registry.UnknownBlockError
		missingErr *registry.MissingBlockError
	)
	if errors.As(err, &parseErr) || errors.As(err, &dupErr) || errors.As(err, &configErr) ||
		errors.As(err, &unknownErr) || errors.As(err, &missingErr) {
		return exitUsage
	}
	return exitGeneral
}
