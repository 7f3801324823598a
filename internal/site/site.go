package site

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/cbvr/internal/domain"
	"github.com/John-Robertt/cbvr/internal/infra/fsx"
	"github.com/John-Robertt/cbvr/internal/infra/imgx"
	"github.com/John-Robertt/cbvr/internal/layout"
)

const (
	IndexFileName    = "index.html"
	ManifestFileName = "images.json"
	ScriptFileName   = "scripts/cardboard-webvr.js"
	StartImageName   = "assets/start.png"
)

// 起始画面（#start）的尺寸：2:1 黑色画布。
const (
	startWidth  = 1024
	startHeight = startWidth / 2
)

//go:embed templates/index.html templates/welcome.txt
var templates embed.FS

//go:embed static/scripts/cardboard-webvr.js
var static embed.FS

// Carousel 是生成轮播元素所需的几何参数。
type Carousel struct {
	Height    float64
	OrbRadius float64
}

// Item 是轮播中的一张照片。
type Item struct {
	Photo domain.StereoPhoto
	Slot  layout.Slot
}

// Page 描述一次 index.html 渲染。
type Page struct {
	// OutDir 用于把图片绝对路径换算为站点内的相对路径。
	OutDir string
	// Placard 是起始画面标牌上的文字（与 images.json 第 0 条的 caption 一致）。
	Placard string
	// Welcome 为空时使用内置 welcome.txt。
	Welcome string

	Items    []Item
	Carousel Carousel
}

// Manifest 返回 images.json 的全部条目：起始条目在前，其后按照片顺序。
func Manifest(placard string, photos []domain.StereoPhoto) []domain.ManifestEntry {
	out := make([]domain.ManifestEntry, 0, len(photos)+1)
	out = append(out, domain.StartEntry(placard))
	for _, p := range photos {
		out = append(out, p.Entry())
	}
	return out
}

// EncodeManifest 把条目编码为 images.json 内容。
func EncodeManifest(entries []domain.ManifestEntry) ([]byte, error) {
	if entries == nil {
		entries = []domain.ManifestEntry{}
	}
	return json.Marshal(entries)
}

// RenderIndex 把图片资源与轮播元素注入内置模板。
//
// 模板中的占位元素：
// - #asset-placeholder：替换为 <img>（预览图在前，促使其先加载）
// - #carousel-placeholder：替换为每张照片的 <a-image>/<a-sphere>/<a-plane>
// - #placard-text / #welcome-text：写入 value 属性
func RenderIndex(p Page) ([]byte, error) {
	tpl, err := templates.ReadFile("templates/index.html")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(tpl))
	if err != nil {
		return nil, fmt.Errorf("解析 index 模板失败：%w", err)
	}

	var previews, eyes, carousel strings.Builder
	for _, it := range p.Items {
		ph := it.Photo
		writeImg(&previews, ph.PreviewImageID(), p.assetSrc(ph.PreviewImagePath))
		writeImg(&eyes, ph.LeftImageID(), p.assetSrc(ph.LeftImagePath))
		writeImg(&eyes, ph.RightImageID(), p.assetSrc(ph.RightImagePath))
		writeCarousel(&carousel, ph, it.Slot, p.Carousel)
	}

	if err := replace(doc, "#asset-placeholder", previews.String()+eyes.String()); err != nil {
		return nil, err
	}
	if err := replace(doc, "#carousel-placeholder", carousel.String()); err != nil {
		return nil, err
	}

	welcome := p.Welcome
	if strings.TrimSpace(welcome) == "" {
		b, err := templates.ReadFile("templates/welcome.txt")
		if err != nil {
			return nil, err
		}
		welcome = string(b)
	}
	placard := domain.StartEntry(p.Placard).Caption
	if err := setValue(doc, "#placard-text", placard); err != nil {
		return nil, err
	}
	if err := setValue(doc, "#welcome-text", escapeNewlines(welcome)); err != nil {
		return nil, err
	}

	out, err := doc.Html()
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// StartImage 渲染起始画面图片（PNG）。
func StartImage() ([]byte, error) {
	enc, err := imgx.LookupEncoder("png", 0)
	if err != nil {
		return nil, err
	}
	return imgx.Encode(imgx.BlackCanvas(startWidth, startHeight), enc)
}

// Script 返回内置的浏览器端脚本。
func Script() ([]byte, error) {
	return static.ReadFile("static/scripts/cardboard-webvr.js")
}

// Write 把站点文件写入 outDir，返回写入的文件（绝对路径，按写入顺序）。
// 照片图片由调用方在此之前写好。
func Write(outDir string, p Page, entries []domain.ManifestEntry) ([]string, error) {
	index, err := RenderIndex(p)
	if err != nil {
		return nil, err
	}
	manifest, err := EncodeManifest(entries)
	if err != nil {
		return nil, err
	}
	script, err := Script()
	if err != nil {
		return nil, err
	}
	start, err := StartImage()
	if err != nil {
		return nil, err
	}

	files := []struct {
		rel  string
		data []byte
	}{
		{IndexFileName, index},
		{ManifestFileName, manifest},
		{ScriptFileName, script},
		{StartImageName, start},
	}
	written := make([]string, 0, len(files))
	for _, f := range files {
		dst := filepath.Join(outDir, filepath.FromSlash(f.rel))
		if err := fsx.WriteFileAtomic(dst, f.data); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}

// assetSrc 返回图片在站点内的相对 URL（逐段转义）。
func (p Page) assetSrc(abs string) string {
	rel := filepath.Base(abs)
	if p.OutDir != "" {
		if r, err := filepath.Rel(p.OutDir, abs); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	u := url.URL{Path: filepath.ToSlash(rel)}
	return u.EscapedPath()
}

func writeImg(b *strings.Builder, ref, src string) {
	fmt.Fprintf(b, "\n          <img id=\"%s\" src=\"%s\">", attr(domain.RawID(ref)), attr(src))
}

func writeCarousel(b *strings.Builder, ph domain.StereoPhoto, s layout.Slot, c Carousel) {
	orbY := layout.NavOrbY(c.Height, s.EdgeSize, c.OrbRadius)
	x, z := num(s.X), num(s.Z)
	yaw := "0 " + num(s.YawDeg) + " 0"
	edge := num(s.EdgeSize)

	fmt.Fprintf(b, "\n      <a-image class=\"welcome\" position=\"%s %s %s\" rotation=\"%s\" src=\"%s\" width=\"%s\" height=\"%s\"></a-image>",
		x, num(c.Height), z, yaw, attr(ph.PreviewImageID()), edge, edge)
	fmt.Fprintf(b, "\n      <a-sphere cursor-listener-nav=\"imageIndex: %d\" class=\"welcome cursor-active\" radius=\"%s\" position=\"%s %s %s\" color=\"silver\"></a-sphere>",
		ph.N, num(c.OrbRadius), x, num(orbY), z)
	fmt.Fprintf(b, "\n      <a-plane cursor-visible class=\"welcome cursor-active\" position=\"%s %s %s\" rotation=\"%s\" width=\"%s\" height=\"%s\" material=\"opacity: 0.0; transparent: true\"></a-plane>",
		x, num(orbY), z, yaw, edge, num(c.OrbRadius*2))
}

func replace(doc *goquery.Document, selector, fragment string) error {
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return fmt.Errorf("index 模板缺少占位元素 %s", selector)
	}
	sel.ReplaceWithHtml(fragment)
	return nil
}

func setValue(doc *goquery.Document, selector, v string) error {
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return fmt.Errorf("index 模板缺少元素 %s", selector)
	}
	sel.SetAttr("value", v)
	return nil
}

// escapeNewlines 把换行写成字面量 "\n"：a-text 的 value 只认转义序列。
func escapeNewlines(s string) string {
	s = strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	return strings.ReplaceAll(s, "\n", `\n`)
}

// num 格式化坐标；-0 写成 0。
func num(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func attr(s string) string { return html.EscapeString(s) }
