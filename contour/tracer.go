package contour

import (
	"errors"
	"fmt"

	"github.com/TIANLI0/MaskKit/model"
	"gocv.io/x/gocv"
)

const (
	initialTolerance = 0.5
	toleranceStep    = 0.5
	maxTolerance     = 10.0
)

var ErrEmptyMask = errors.New("mask image is empty")

// pointCaps 轮廓精度 0/1/2 对应的单条轮廓最大点数
var pointCaps = [...]int{250, 500, 1000}

// MaxPoints 返回精度设置对应的点数上限，越界时按最高精度处理
func MaxPoints(fidelity int) int {
	if fidelity < 0 || fidelity >= len(pointCaps) {
		return pointCaps[len(pointCaps)-1]
	}
	return pointCaps[fidelity]
}

// Tracer 从掩码 PNG 中提取外轮廓，输出 [行, 列] 像素坐标
type Tracer struct{}

func NewTracer() *Tracer {
	return &Tracer{}
}

// Trace 解码掩码并提取外轮廓。带透明通道的 PNG 以 alpha 作为前景，否则按灰度阈值处理。
func (t *Tracer) Trace(data []byte, fidelity int) ([]model.Contour, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrEmptyMask
	}

	gray := t.foreground(&img)
	defer gray.Close()

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, 127, 255, gocv.ThresholdBinary)

	found := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer found.Close()

	limit := MaxPoints(fidelity)
	contours := make([]model.Contour, 0, found.Size())
	for i := 0; i < found.Size(); i++ {
		points := simplify(found.At(i), limit)
		contours = append(contours, model.Contour{Index: i, Points: points})
	}
	return contours, nil
}

// foreground 取出单通道前景图
func (t *Tracer) foreground(img *gocv.Mat) gocv.Mat {
	switch img.Channels() {
	case 4:
		channels := gocv.Split(*img)
		for _, ch := range channels[:3] {
			ch.Close()
		}
		return channels[3]
	case 3:
		gray := gocv.NewMat()
		gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)
		return gray
	default:
		return img.Clone()
	}
}

// simplify 点数超过上限时逐步放大容差，容差最多到 maxTolerance
func simplify(curve gocv.PointVector, limit int) [][2]float64 {
	if curve.Size() <= limit {
		return toRowCol(curve)
	}

	tolerance := initialTolerance
	approx := gocv.ApproxPolyDP(curve, tolerance, true)
	for approx.Size() > limit && tolerance < maxTolerance {
		approx.Close()
		tolerance += toleranceStep
		approx = gocv.ApproxPolyDP(curve, tolerance, true)
	}
	defer approx.Close()
	return toRowCol(approx)
}

func toRowCol(pv gocv.PointVector) [][2]float64 {
	pts := pv.ToPoints()
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{float64(p.Y), float64(p.X)}
	}
	return out
}
