package service

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DecodeDimensions 解码图片得到自然宽高，应用 EXIF 方向
func DecodeDimensions(data []byte) (int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode preview: %w", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// DataURL 本地预览地址
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
