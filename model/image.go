package model

// UploadStatus 图片上传状态
type UploadStatus string

const (
	StatusPendingLocal      UploadStatus = "pending-local"
	StatusUploading         UploadStatus = "uploading"
	StatusUploaded          UploadStatus = "uploaded"
	StatusDuplicateRejected UploadStatus = "duplicate-rejected"
)

// SegmentPhase 自动分割状态
type SegmentPhase string

const (
	SegmentIdle       SegmentPhase = "idle"
	SegmentRequesting SegmentPhase = "requesting"
	SegmentSuccess    SegmentPhase = "success"
	SegmentFailure    SegmentPhase = "failure"
)

// Image 工作区中的一张图片
type Image struct {
	LocalID      string       `json:"local_id"`
	Hash         string       `json:"file_hash,omitempty"`
	Src          string       `json:"src"`
	Name         string       `json:"name"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	Status       UploadStatus `json:"status"`
	Entries      []Annotation `json:"annotations"`
	SelectedWord string       `json:"selected_word,omitempty"`
	Prompts      Prompts      `json:"prompts"`
	Segment      SegmentPhase `json:"segment"`
}

// Annotation 标注词及其对应的掩码槽位
type Annotation struct {
	Word string      `json:"word"`
	Mask *MaskRecord `json:"mask,omitempty"`
}

// MaskRecord 后端返回的掩码记录
type MaskRecord struct {
	ID        int              `json:"id"`
	UUID      string           `json:"uuid"`
	MaskImage string           `json:"maskImage"`
	Contours  *ContourDocument `json:"contours,omitempty"`
}

// Label 返回掩码自身保存的标签
func (m *MaskRecord) Label() string {
	if m == nil || m.Contours == nil {
		return ""
	}
	return m.Contours.Label
}

// ContourDocument 轮廓文档
type ContourDocument struct {
	Label    string    `json:"label"`
	Contours []Contour `json:"contours"`
}

// Contour 单个多边形环
type Contour struct {
	Index  int          `json:"contour_index"`
	Points [][2]float64 `json:"points"`
}

// Key 稳定标识：上传完成后为内容哈希，之前为本地临时标识
func (img Image) Key() string {
	if img.Hash != "" {
		return img.Hash
	}
	return img.LocalID
}

// Words 标注词列表（账本视图）
func (img Image) Words() []string {
	words := make([]string, len(img.Entries))
	for i, e := range img.Entries {
		words[i] = e.Word
	}
	return words
}

// Masks 掩码列表（与 Words 按下标对齐）
func (img Image) Masks() []*MaskRecord {
	masks := make([]*MaskRecord, len(img.Entries))
	for i, e := range img.Entries {
		masks[i] = e.Mask
	}
	return masks
}

// IndexOf 返回标注词的下标，不存在时返回 -1
func (img Image) IndexOf(word string) int {
	for i, e := range img.Entries {
		if e.Word == word {
			return i
		}
	}
	return -1
}

// HasMasks 是否至少存在一个掩码
func (img Image) HasMasks() bool {
	for _, e := range img.Entries {
		if e.Mask != nil {
			return true
		}
	}
	return false
}

// Busy 分割请求进行中
func (img Image) Busy() bool {
	return img.Segment == SegmentRequesting
}

// Clone 深拷贝，写操作只作用于副本
func (img Image) Clone() Image {
	out := img
	if img.Entries != nil {
		out.Entries = make([]Annotation, len(img.Entries))
		copy(out.Entries, img.Entries)
	}
	out.Prompts = img.Prompts.clone()
	return out
}

// PairAnnotations 将排序后的标注词与同序的掩码组合，长度不一致时返回 false
func PairAnnotations(words []string, masks []*MaskRecord) ([]Annotation, bool) {
	if len(words) != len(masks) {
		return nil, false
	}
	entries := make([]Annotation, len(words))
	for i, w := range words {
		entries[i] = Annotation{Word: w, Mask: masks[i]}
	}
	return entries, true
}
