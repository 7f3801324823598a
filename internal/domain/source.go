package domain

// SourceFile 描述一次扫描得到的输入照片（只做 stat，不读内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - 扫描阶段只做 stat，不读文件内容
type SourceFile struct {
	AbsPath string
	RelPath string
	Base    string // 文件名去掉扩展名，例如 "IMG_1.vr"
	Ext     string // ".jpg"
	Size    int64
	ModUnix int64
}
