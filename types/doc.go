package types

import "IDXCORE/internal/payload"

// Document 业务侧的文档：Id是业务主键，Fields按字段名保存值
type Document struct {
	Id     string
	Fields map[string][]payload.Value
}

// Keyword 全文索引里的一个词，Field为空表示单字段索引
type Keyword struct {
	Field string
	Word  string
}

// ToString 将Keyword的两项：field和word合并成一个字符串
func (kw *Keyword) ToString() string {
	if len(kw.Word) == 0 {
		return ""
	}
	if len(kw.Field) == 0 {
		return kw.Word
	}
	return kw.Field + "\001" + kw.Word
}
