package model

// Tool 画布交互工具
type Tool string

const (
	ToolNone      Tool = "none"
	ToolInclusion Tool = "inclusion"
	ToolExclusion Tool = "exclusion"
	ToolBox       Tool = "box"
	ToolEraser    Tool = "eraser"
)

// Tools 所有可选工具
var Tools = []Tool{ToolInclusion, ToolExclusion, ToolBox, ToolEraser}

// Valid 是否为已知工具
func (t Tool) Valid() bool {
	switch t {
	case ToolNone, ToolInclusion, ToolExclusion, ToolBox, ToolEraser:
		return true
	}
	return false
}

// Click 点击工具：再次点击当前工具则取消选择
func (t Tool) Click(next Tool) Tool {
	if t == next {
		return ToolNone
	}
	return next
}

// NeedsWord 点/框工具需要先选中标注词
func (t Tool) NeedsWord() bool {
	return t == ToolInclusion || t == ToolExclusion || t == ToolBox
}

// ToolAvailability 计算当前图片下每个工具是否可用
func ToolAvailability(img Image) map[Tool]bool {
	hasWord := img.SelectedWord != ""
	busy := img.Busy()
	return map[Tool]bool{
		ToolInclusion: !busy && hasWord && len(img.Prompts.Boxes) == 0,
		ToolExclusion: !busy && hasWord,
		ToolBox:       !busy && hasWord && len(img.Prompts.Inclusion) == 0,
		ToolEraser:    !busy,
	}
}

// ToolAvailable 单个工具是否可用，ToolNone 总是可用
func ToolAvailable(img Image, t Tool) bool {
	if t == ToolNone {
		return true
	}
	return ToolAvailability(img)[t]
}
