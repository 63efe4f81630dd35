package model

// UploadResult 后端上传响应
type UploadResult struct {
	Message       string `json:"message"`
	ImageName     string `json:"imageName"`
	ImageLocation string `json:"imageLocation"`
	FileHash      string `json:"file_hash"`
}

// RemoteImage 后端图片列表中的一项
type RemoteImage struct {
	ID        int              `json:"id"`
	Name      string           `json:"name"`
	File      string           `json:"file"`
	FileHash  string           `json:"file_hash"`
	WordMasks []RemoteWordMask `json:"word_masks"`
}

// RemoteWordMask 标注词及其关联掩码
type RemoteWordMask struct {
	ID              int          `json:"id"`
	Word            string       `json:"word"`
	AssociatedMasks []MaskRecord `json:"associated_masks"`
}

// FirstMask 取第一个关联掩码，没有时返回 nil
func (w RemoteWordMask) FirstMask() *MaskRecord {
	if len(w.AssociatedMasks) == 0 {
		return nil
	}
	m := w.AssociatedMasks[0]
	return &m
}

// WordList 标注词列表响应
type WordList struct {
	Image string `json:"image"`
	Words []struct {
		Word string `json:"word"`
	} `json:"words"`
}

// Settings 会话级分割参数
type Settings struct {
	// Model 0 最快，3 最精确
	Model int `json:"model"`
	// ContourFidelity 0 低，2 高
	ContourFidelity int `json:"contour_fidelity"`
}

const (
	MaxModelSetting           = 3
	MaxContourFidelitySetting = 2
)

// Valid 参数是否在合法范围内
func (s Settings) Valid() bool {
	return s.Model >= 0 && s.Model <= MaxModelSetting &&
		s.ContourFidelity >= 0 && s.ContourFidelity <= MaxContourFidelitySetting
}

// SegmentRequest 自动分割请求
type SegmentRequest struct {
	FileHash string
	Word     string
	Prompts  Prompts
	Settings Settings
}

// BoxQuads 边界框按 [x1,y1,x2,y2] 序列化
func (r SegmentRequest) BoxQuads() [][4]float64 {
	quads := make([][4]float64, len(r.Prompts.Boxes))
	for i, b := range r.Prompts.Boxes {
		quads[i] = [4]float64{b.X1, b.Y1, b.X2, b.Y2}
	}
	return quads
}
