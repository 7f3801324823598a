package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/cbvr/internal/app/run"
	"github.com/John-Robertt/cbvr/internal/config"
	"github.com/John-Robertt/cbvr/internal/domain"
	"github.com/John-Robertt/cbvr/internal/infra/fsx"
)

// ReportFileName 写在输出目录下。
const ReportFileName = "report.json"

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "build":
		if code := buildCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func buildCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printBuildUsage()
			return 0
		}
	}

	ba, err := parseBuildArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printBuildUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Input:        ba.Input,
		Output:       ba.Output,
		KeepGoing:    ba.KeepGoing,
		KeepGoingSet: ba.KeepGoingSet,
		Force:        ba.Force,
		ForceSet:     ba.ForceSet,
	})
	if err != nil {
		emitReport(reportForConfigError(cwdAbs, ba, err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, obs)

	// 输出目录在运行级错误时可能还不存在：此时不为了写 report 而创建它。
	if dirExists(eff.Output) {
		if err := writeReportFile(eff.Output, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff, rr)
	}
	if rr.OK() {
		return 0
	}
	return 1
}

type buildArgs struct {
	Input  string
	Output string

	KeepGoing    bool
	KeepGoingSet bool
	Force        bool
	ForceSet     bool
}

func parseBuildArgs(args []string) (buildArgs, error) {
	ba := buildArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--out":
			if i+1 >= len(args) {
				return buildArgs{}, fmt.Errorf("--out 需要一个值")
			}
			i++
			ba.Output = args[i]
		case strings.HasPrefix(a, "--out="):
			ba.Output = strings.TrimPrefix(a, "--out=")
		case a == "--keep-going":
			ba.KeepGoing = true
			ba.KeepGoingSet = true
		case strings.HasPrefix(a, "--keep-going="):
			v, err := parseBoolFlag("--keep-going", strings.TrimPrefix(a, "--keep-going="))
			if err != nil {
				return buildArgs{}, err
			}
			ba.KeepGoing = v
			ba.KeepGoingSet = true
		case a == "--force":
			ba.Force = true
			ba.ForceSet = true
		case strings.HasPrefix(a, "--force="):
			v, err := parseBoolFlag("--force", strings.TrimPrefix(a, "--force="))
			if err != nil {
				return buildArgs{}, err
			}
			ba.Force = v
			ba.ForceSet = true
		case strings.HasPrefix(a, "-"):
			return buildArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ba.Input != "" {
				return buildArgs{}, fmt.Errorf("重复的 input：%q 与 %q", ba.Input, a)
			}
			ba.Input = a
		}
	}

	if strings.TrimSpace(ba.Output) == "" && ba.Output != "" {
		return buildArgs{}, fmt.Errorf("--out 不能为空")
	}
	return ba, nil
}

func parseBoolFlag(name, v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, v)
	}
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  cbvr build [input] [--out dir] [--keep-going[=true|false]] [--force[=true|false]]

命令：
  build  把 cardboard 立体照片生成为 WebVR 站点

使用 "cbvr build --help" 查看详细说明。
`)
}

func printBuildUsage() {
	fmt.Fprint(os.Stdout, `用法：
  cbvr build [input] [--out dir] [--keep-going[=true|false]] [--force[=true|false]]

参数：
  input         照片目录或单个照片文件（未指定则读取当前目录的 cbvr.json）
  --out         输出目录（默认 <输入目录>/webvr）
  --keep-going  单张照片失败时继续处理其余照片（默认第一张失败即停止）
  --force       忽略已有输出，全部重新生成
  -h, --help    显示帮助
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：processed=%d skipped=%d failed=%d\n",
			rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
		)
		for _, w := range rr.Warnings {
			fmt.Fprintf(os.Stderr, "警告：%s\n", w)
		}
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Source
				if key == "" {
					key = "<run>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：processed=%d skipped=%d failed=%d\n",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func reportForConfigError(cwdAbs string, ba buildArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	input := ba.Input
	if input == "" {
		input = cwdAbs
	}
	rr := domain.RunReport{
		Input:      input,
		Output:     ba.Output,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Source:    "",
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
			Outputs:   []domain.OutputResult{},
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(outDir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(filepath.Join(outDir, ReportFileName), b)
}

func dirExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, rr domain.RunReport) {
	if w == nil {
		return
	}
	if dirExists(eff.Output) {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Output, ReportFileName))
	}
	// 只在本次运行真正写出站点时提示；目录里可能残留上一次的 index.html。
	if rr.Site != "" {
		fmt.Fprintf(w, "site: %s\n", rr.Site)
	}
}
