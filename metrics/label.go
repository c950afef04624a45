package metrics

// Label 指标标签
//
// 标签值应保持低基数，不要使用用户 ID、文档 ID 这类值。
type Label struct {
	Key   string
	Value string
}

// L 创建 Label
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
