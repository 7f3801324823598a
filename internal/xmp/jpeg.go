package xmp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP1 = 0xE1
)

var (
	standardHeader = []byte("http://ns.adobe.com/xap/1.0/\x00")
	extendedHeader = []byte("http://ns.adobe.com/xmp/extension/\x00")
)

var errBadMarker = errors.New("JPEG 标记缺失")

// ErrMalformed 表示文件内容（JPEG 段或 XMP packet）损坏；与读取文件本身失败区分开。
var ErrMalformed = errors.New("XMP 数据损坏")

// 扩展 XMP 分片头：GUID(32) + 总长度(uint32) + 偏移(uint32)。
const extendedPrefixLen = 32 + 4 + 4

// maxExtendedLen 限制单个扩展 packet 的声明长度，避免按损坏的头部分配超大内存。
const maxExtendedLen = 256 << 20

// ReadFile 读取文件中的全部 XMP 目录。
func ReadFile(path string) ([]*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read 扫描 JPEG 标记段（SOI 到 SOS），收集 APP1 中的 XMP packet 并解析为目录。
//
// 规则：
// - 标准 XMP 按出现顺序各成一个目录
// - 扩展 XMP 按 GUID 拼装，完整的 packet 追加在标准目录之后（按 GUID 首次出现顺序）
// - 不是 JPEG（无 SOI）时返回空列表而不是错误：它只是“不含 XMP”
func Read(r io.Reader) ([]*Directory, error) {
	br := bufio.NewReader(r)

	var soi [2]byte
	if _, err := io.ReadFull(br, soi[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, err
	}
	if soi[0] != 0xFF || soi[1] != markerSOI {
		return nil, nil
	}

	var (
		standard [][]byte
		ext      = newExtendedSet()
	)

	for {
		marker, err := nextMarker(br)
		if err != nil {
			// 截断或标记错乱：停止扫描，保留已收集的段。
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, errBadMarker) {
				break
			}
			return nil, err
		}
		if marker == markerSOS || marker == markerEOI {
			break
		}
		if isStandalone(marker) {
			continue
		}

		var lb [2]byte
		if _, err := io.ReadFull(br, lb[:]); err != nil {
			break
		}
		n := int(binary.BigEndian.Uint16(lb[:]))
		if n < 2 {
			return nil, fmt.Errorf("%w：JPEG 段长度非法：marker=0x%02X len=%d", ErrMalformed, marker, n)
		}
		seg := make([]byte, n-2)
		if _, err := io.ReadFull(br, seg); err != nil {
			// 截断文件：已读到的段仍然有效。
			break
		}

		if marker != markerAPP1 {
			continue
		}
		switch {
		case bytes.HasPrefix(seg, standardHeader):
			standard = append(standard, seg[len(standardHeader):])
		case bytes.HasPrefix(seg, extendedHeader):
			ext.add(seg[len(extendedHeader):])
		}
	}

	// 单个 packet 损坏不影响其它目录；全部失败时才返回错误。
	var firstErr error
	dirs := make([]*Directory, 0, len(standard)+len(ext.order))
	for _, p := range standard {
		d, err := ParsePacket(p)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w：解析 XMP 失败：%w", ErrMalformed, err)
			}
			continue
		}
		dirs = append(dirs, d)
	}
	for _, p := range ext.complete() {
		d, err := ParsePacket(p)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w：解析扩展 XMP 失败：%w", ErrMalformed, err)
			}
			continue
		}
		dirs = append(dirs, d)
	}
	if len(dirs) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return dirs, nil
}

func nextMarker(br *bufio.Reader) (byte, error) {
	b, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		return 0, fmt.Errorf("%w：期望 0xFF，实际 0x%02X", errBadMarker, b)
	}
	// 标记前允许任意个 0xFF 填充字节。
	for {
		m, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if m != 0xFF {
			return m, nil
		}
	}
}

func isStandalone(marker byte) bool {
	return marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7)
}

type extendedPacket struct {
	buf []byte
	// chunks 记录已收到的分片：偏移 -> 长度（重复分片只算一次）。
	chunks map[int]int
}

// complete 报告分片是否覆盖了 [0, len(buf))。
func (p *extendedPacket) complete() bool {
	offs := make([]int, 0, len(p.chunks))
	for off := range p.chunks {
		offs = append(offs, off)
	}
	sort.Ints(offs)
	covered := 0
	for _, off := range offs {
		if off > covered {
			return false
		}
		if end := off + p.chunks[off]; end > covered {
			covered = end
		}
	}
	return covered >= len(p.buf)
}

type extendedSet struct {
	byGUID map[string]*extendedPacket
	order  []string
}

func newExtendedSet() *extendedSet {
	return &extendedSet{byGUID: map[string]*extendedPacket{}}
}

func (s *extendedSet) add(chunk []byte) {
	if len(chunk) < extendedPrefixLen {
		return
	}
	guid := string(chunk[:32])
	full := int(binary.BigEndian.Uint32(chunk[32:36]))
	off := int(binary.BigEndian.Uint32(chunk[36:40]))
	data := chunk[extendedPrefixLen:]

	if full <= 0 || full > maxExtendedLen {
		return
	}

	p, ok := s.byGUID[guid]
	if !ok {
		p = &extendedPacket{buf: make([]byte, full), chunks: map[int]int{}}
		s.byGUID[guid] = p
		s.order = append(s.order, guid)
	}
	// 同一 GUID 的总长度必须一致；越界分片直接丢弃。
	if len(p.buf) != full || off < 0 || off+len(data) > full {
		return
	}
	copy(p.buf[off:], data)
	if len(data) > p.chunks[off] {
		p.chunks[off] = len(data)
	}
}

func (s *extendedSet) complete() [][]byte {
	out := make([][]byte, 0, len(s.order))
	for _, guid := range s.order {
		p := s.byGUID[guid]
		if !p.complete() {
			continue
		}
		out = append(out, p.buf)
	}
	return out
}
