package scan

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/cbvr/internal/domain"
)

// TitleFileName 是欢迎页标题文件（大小写不敏感）；只取第一行。
const TitleFileName = "title.txt"

// configFileName 与 config.FileName 相同；scan 不依赖 config 包。
const configFileName = "cbvr.json"

// Result 是一次扫描的结果。
type Result struct {
	Files []domain.SourceFile
	// Welcome 是 title.txt 的第一行（已 trim）；没有 title.txt 时为空。
	Welcome string
	// TitlePath 是实际读取的 title.txt 路径（便于报告）。
	TitlePath string
}

// ScanPhotos 枚举 input 下的候选照片。
//
// 规则：
// - input 是文件：只返回它自己
// - input 是目录：只看顶层普通文件（不递归），按文件名排序；跳过 '.' 开头的文件与 cbvr.json
// - title.txt 不作为照片，其第一行作为欢迎页标题
// - 不按扩展名过滤：是否为立体照片只由元数据决定
//
// 注意：照片只做 stat，不读内容。
func ScanPhotos(input string, isFile bool) (Result, error) {
	input = filepath.Clean(input)
	if isFile {
		f, err := statSource(filepath.Dir(input), input)
		if err != nil {
			return Result{}, err
		}
		return Result{Files: []domain.SourceFile{f}}, nil
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return Result{}, err
	}

	var res Result
	res.Files = make([]domain.SourceFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || name == configFileName {
			continue
		}
		path := filepath.Join(input, name)

		if strings.EqualFold(name, TitleFileName) {
			title, err := readFirstLine(path)
			if err != nil {
				return Result{}, fmt.Errorf("读取 %s 失败：%w", name, err)
			}
			res.Welcome = title
			res.TitlePath = path
			continue
		}

		f, err := statSource(input, path)
		if err != nil {
			return Result{}, err
		}
		if f.AbsPath == "" {
			continue
		}
		res.Files = append(res.Files, f)
	}

	// os.ReadDir 已按文件名排序；这里再显式排一次，保证 id 分配顺序不依赖平台实现。
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].RelPath < res.Files[j].RelPath })
	return res, nil
}

// statSource 对 path 做 stat（跟随符号链接）；不是普通文件时返回零值。
func statSource(root, path string) (domain.SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.SourceFile{}, err
	}
	if !info.Mode().IsRegular() {
		return domain.SourceFile{}, nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return domain.SourceFile{}, err
	}
	name := filepath.Base(path)
	return domain.SourceFile{
		AbsPath: path,
		RelPath: rel,
		Base:    strings.TrimSuffix(name, filepath.Ext(name)),
		Ext:     strings.ToLower(filepath.Ext(name)),
		Size:    info.Size(),
		ModUnix: info.ModTime().Unix(),
	}, nil
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return "", sc.Err()
	}
	line := bytes.TrimPrefix(sc.Bytes(), []byte("\xef\xbb\xbf"))
	return strings.TrimSpace(string(line)), nil
}
