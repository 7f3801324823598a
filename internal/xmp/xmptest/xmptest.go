package xmptest

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"html"
	"sort"
	"strings"
)

// Props 是内存中的属性表，满足 xmp.PropertySource。
type Props map[string]string

func (p Props) Property(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// Photo 描述一张合成 cardboard 照片的元数据。
type Photo struct {
	// Attrs 写成 rdf:Description 的属性（key 形如 "GImage:Data"）。
	Attrs map[string]string
	// Title / Description 非空时写成 dc:title / dc:description 的 rdf:Alt。
	Title       string
	Description string
}

// Packet 生成一个 XMP packet（含 xpacket 包装）。
func Packet(p Photo) []byte {
	var b strings.Builder
	b.WriteString(`<?xpacket begin="` + "\ufeff" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>`)
	b.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/">`)
	b.WriteString(`<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">`)
	b.WriteString(`<rdf:Description rdf:about=""`)
	b.WriteString(` xmlns:GImage="http://ns.google.com/photos/1.0/image/"`)
	b.WriteString(` xmlns:GPano="http://ns.google.com/photos/1.0/panorama/"`)
	b.WriteString(` xmlns:dc="http://purl.org/dc/elements/1.1/"`)

	keys := make([]string, 0, len(p.Attrs))
	for k := range p.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ` %s="%s"`, k, html.EscapeString(p.Attrs[k]))
	}
	b.WriteString(`>`)
	if p.Title != "" {
		fmt.Fprintf(&b, `<dc:title><rdf:Alt><rdf:li xml:lang="x-default">%s</rdf:li></rdf:Alt></dc:title>`, html.EscapeString(p.Title))
	}
	if p.Description != "" {
		fmt.Fprintf(&b, `<dc:description><rdf:Alt><rdf:li xml:lang="x-default">%s</rdf:li></rdf:Alt></dc:description>`, html.EscapeString(p.Description))
	}
	b.WriteString(`</rdf:Description></rdf:RDF></x:xmpmeta>`)
	b.WriteString(`<?xpacket end="w"?>`)
	return []byte(b.String())
}

// WithStandard 在 base（完整 JPEG）的 SOI 之后插入一个标准 XMP APP1 段。
func WithStandard(base, packet []byte) []byte {
	seg := app1(append([]byte("http://ns.adobe.com/xap/1.0/\x00"), packet...))
	return splice(base, seg)
}

// WithExtended 把 packet 按 chunk 字节切片为扩展 XMP APP1 段，插入到 base 的 SOI 之后。
func WithExtended(base, packet []byte, chunk int) []byte {
	if chunk <= 0 {
		chunk = 60000
	}
	sum := md5.Sum(packet)
	guid := strings.ToUpper(hex.EncodeToString(sum[:]))

	var segs []byte
	for off := 0; off < len(packet); off += chunk {
		end := off + chunk
		if end > len(packet) {
			end = len(packet)
		}
		var body bytes.Buffer
		body.WriteString("http://ns.adobe.com/xmp/extension/\x00")
		body.WriteString(guid)
		var n [8]byte
		binary.BigEndian.PutUint32(n[0:4], uint32(len(packet)))
		binary.BigEndian.PutUint32(n[4:8], uint32(off))
		body.Write(n[:])
		body.Write(packet[off:end])
		segs = append(segs, app1(body.Bytes())...)
	}
	return splice(base, segs)
}

func app1(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, 0xFF, 0xE1)
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(payload)+2))
	out = append(out, l[:]...)
	return append(out, payload...)
}

func splice(base, segs []byte) []byte {
	if len(base) < 2 {
		panic("xmptest: base 不是 JPEG")
	}
	out := make([]byte, 0, len(base)+len(segs))
	out = append(out, base[:2]...)
	out = append(out, segs...)
	return append(out, base[2:]...)
}
