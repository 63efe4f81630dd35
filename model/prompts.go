package model

import "math"

// Point 归一化坐标点，取值范围 [0,1]
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box 边界框，两个角点无序
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Normalized 返回左上/右下有序的边界框，仅用于渲染
func (b Box) Normalized() Box {
	return Box{
		X1: math.Min(b.X1, b.X2),
		Y1: math.Min(b.Y1, b.Y2),
		X2: math.Max(b.X1, b.X2),
		Y2: math.Max(b.Y1, b.Y2),
	}
}

// ZeroArea 宽或高为零
func (b Box) ZeroArea() bool {
	return b.X1 == b.X2 || b.Y1 == b.Y2
}

// PrimitiveKind 提示图元类型
type PrimitiveKind string

const (
	PrimitiveInclusion PrimitiveKind = "inclusion"
	PrimitiveExclusion PrimitiveKind = "exclusion"
	PrimitiveBox       PrimitiveKind = "box"
)

// Primitive 橡皮擦的目标图元
type Primitive struct {
	Kind  PrimitiveKind `json:"kind"`
	Point Point         `json:"point"`
	Box   Box           `json:"box"`
}

// Prompts 单张图片的提示几何数据
type Prompts struct {
	Inclusion []Point `json:"inclusion_points"`
	Exclusion []Point `json:"exclusion_points"`
	Boxes     []Box   `json:"bounding_boxes"`
}

func (p Prompts) clone() Prompts {
	return Prompts{
		Inclusion: append([]Point(nil), p.Inclusion...),
		Exclusion: append([]Point(nil), p.Exclusion...),
		Boxes:     append([]Box(nil), p.Boxes...),
	}
}

// AddInclusion 添加包含点
func (p Prompts) AddInclusion(pt Point) Prompts {
	out := p.clone()
	out.Inclusion = append(out.Inclusion, pt)
	return out
}

// AddExclusion 添加排除点
func (p Prompts) AddExclusion(pt Point) Prompts {
	out := p.clone()
	out.Exclusion = append(out.Exclusion, pt)
	return out
}

// AddBox 添加边界框，面积为零时丢弃
func (p Prompts) AddBox(b Box) (Prompts, bool) {
	if b.ZeroArea() {
		return p, false
	}
	out := p.clone()
	out.Boxes = append(out.Boxes, b)
	return out, true
}

// Remove 按值删除第一个相等的图元
func (p Prompts) Remove(target Primitive) (Prompts, bool) {
	out := p.clone()
	switch target.Kind {
	case PrimitiveInclusion:
		if i := indexOfPoint(out.Inclusion, target.Point); i >= 0 {
			out.Inclusion = append(out.Inclusion[:i], out.Inclusion[i+1:]...)
			return out, true
		}
	case PrimitiveExclusion:
		if i := indexOfPoint(out.Exclusion, target.Point); i >= 0 {
			out.Exclusion = append(out.Exclusion[:i], out.Exclusion[i+1:]...)
			return out, true
		}
	case PrimitiveBox:
		for i, b := range out.Boxes {
			if b == target.Box {
				out.Boxes = append(out.Boxes[:i], out.Boxes[i+1:]...)
				return out, true
			}
		}
	}
	return p, false
}

// Cleared 清空全部图元
func (p Prompts) Cleared() Prompts {
	return Prompts{}
}

// Empty 没有任何图元
func (p Prompts) Empty() bool {
	return len(p.Inclusion) == 0 && len(p.Exclusion) == 0 && len(p.Boxes) == 0
}

// CanSegment 存在包含点或边界框时才可分割，单独的排除点不够
func (p Prompts) CanSegment() bool {
	return len(p.Inclusion) > 0 || len(p.Boxes) > 0
}

func indexOfPoint(points []Point, target Point) int {
	for i, pt := range points {
		if pt == target {
			return i
		}
	}
	return -1
}
