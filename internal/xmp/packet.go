package xmp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nsRDF   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsXMLNS = "xmlns"
	nsXML   = "http://www.w3.org/XML/1998/namespace"
)

// wellKnownPrefixes 用于 packet 未声明 xmlns 时的前缀回退。
var wellKnownPrefixes = map[string]string{
	"http://ns.google.com/photos/1.0/image/":     "GImage",
	"http://ns.google.com/photos/1.0/audio/":     "GAudio",
	"http://ns.google.com/photos/1.0/panorama/":  "GPano",
	"http://purl.org/dc/elements/1.1/":          "dc",
	"http://ns.adobe.com/xap/1.0/":              "xmp",
	"http://ns.adobe.com/xmp/note/":             "xmpNote",
	"http://ns.adobe.com/exif/1.0/":             "exif",
	"http://ns.adobe.com/tiff/1.0/":             "tiff",
	"http://ns.adobe.com/photoshop/1.0/":        "photoshop",
	"http://ns.adobe.com/xap/1.0/mm/":           "xmpMM",
	"http://ns.google.com/photos/dd/1.0/device/": "Device",
}

type frameKind int

const (
	frameOther frameKind = iota
	frameDescription
	frameProperty
	frameArray
	frameItem
)

type frame struct {
	kind frameKind
	name string // property / item 的完整 key；description 的 key 前缀
	text strings.Builder

	hasChild bool
	items    int
}

// ParsePacket 把一个 XMP packet（RDF/XML）展开为扁平属性表。
//
// 支持：
// - rdf:Description 上的属性形式（GImage:Data="..."）
// - 子元素形式（<dc:creator>x</dc:creator>）
// - rdf:Alt / rdf:Seq / rdf:Bag 数组，元素展开为 name[i]（1-based）
// - 结构体（嵌套 rdf:Description 或 rdf:parseType="Resource"），字段展开为 name/field
func ParsePacket(packet []byte) (*Directory, error) {
	packet = bytes.TrimRight(packet, "\x00")
	if len(bytes.TrimSpace(packet)) == 0 {
		return nil, errors.New("XMP packet 为空")
	}

	dec := xml.NewDecoder(bytes.NewReader(packet))
	dec.Strict = false

	d := &Directory{props: map[string]string{}}
	prefixes := map[string]string{}
	stack := make([]*frame, 0, 16)
	sawRDF := false

	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			for _, a := range t.Attr {
				if a.Name.Space == nsXMLNS {
					prefixes[a.Value] = a.Name.Local
				}
			}
			parent := top()
			f := &frame{kind: frameOther}

			switch {
			case isRDF(t.Name, "Description"):
				sawRDF = true
				f.kind = frameDescription
				if parent != nil && (parent.kind == frameProperty || parent.kind == frameItem) {
					parent.hasChild = true
					f.name = parent.name + "/"
				}
				for _, a := range t.Attr {
					if skipAttr(a.Name) {
						continue
					}
					d.set(f.name+qname(a.Name, prefixes), a.Value)
				}
			case parent != nil && parent.kind == frameDescription:
				f.kind = frameProperty
				f.name = parent.name + qname(t.Name, prefixes)
				if hasResourceParseType(t.Attr) {
					// 结构体：字段挂在当前属性名下。
					f.kind = frameDescription
					f.name += "/"
				}
			case parent != nil && parent.kind == frameProperty && isArray(t.Name):
				parent.hasChild = true
				f.kind = frameArray
				f.name = parent.name
			case parent != nil && parent.kind == frameArray && isRDF(t.Name, "li"):
				parent.items++
				f.kind = frameItem
				f.name = fmt.Sprintf("%s[%d]", parent.name, parent.items)
			}
			stack = append(stack, f)

		case xml.CharData:
			if f := top(); f != nil && (f.kind == frameProperty || f.kind == frameItem) {
				f.text.Write(t)
			}

		case xml.EndElement:
			f := top()
			if f == nil {
				continue
			}
			stack = stack[:len(stack)-1]
			if (f.kind == frameProperty || f.kind == frameItem) && !f.hasChild {
				d.set(f.name, f.text.String())
			}
		}
	}

	if !sawRDF {
		return nil, errors.New("XMP packet 缺少 rdf:Description")
	}
	return d, nil
}

func isRDF(n xml.Name, local string) bool {
	return n.Local == local && (n.Space == nsRDF || n.Space == "rdf")
}

func isArray(n xml.Name) bool {
	return isRDF(n, "Alt") || isRDF(n, "Seq") || isRDF(n, "Bag")
}

func hasResourceParseType(attrs []xml.Attr) bool {
	for _, a := range attrs {
		if isRDF(a.Name, "parseType") && a.Value == "Resource" {
			return true
		}
	}
	return false
}

// skipAttr 过滤命名空间声明与 RDF/XML 自身的语法属性（rdf:about、xml:lang 等）。
func skipAttr(n xml.Name) bool {
	switch n.Space {
	case nsXMLNS, nsRDF, "rdf", nsXML, "xml":
		return true
	case "":
		return n.Local == nsXMLNS
	}
	return false
}

// qname 把 encoding/xml 解析出的 {namespace URI, local} 还原为 "prefix:local"。
func qname(n xml.Name, prefixes map[string]string) string {
	if n.Space == "" {
		return n.Local
	}
	if p, ok := prefixes[n.Space]; ok {
		return p + ":" + n.Local
	}
	if p, ok := wellKnownPrefixes[n.Space]; ok {
		return p + ":" + n.Local
	}
	// 未声明的前缀：encoding/xml 会把前缀原样放在 Space 中。
	return n.Space + ":" + n.Local
}
