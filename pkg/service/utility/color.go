package utility

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"os/exec"

	"github.com/EdlinOrg/prominentcolor"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// sampleSize 取色前把图片缩到这个边长以内
const sampleSize = 256

// ColorService 提取图片主色调，结果写入元数据供前端占位使用
type ColorService struct {
	vipsPath string
}

// NewColorService vipsPath 为空或不可执行时只使用标准图像库解码
func NewColorService(vipsPath string) *ColorService {
	if vipsPath == "" {
		vipsPath = "vips"
	}
	if _, err := exec.LookPath(vipsPath); err != nil {
		log.Println("[ColorService] 未检测到VIPS，使用标准图像库。使用 'prominentcolor' (K-Means算法) 来查找主色调。")
		return &ColorService{}
	}
	log.Println("[ColorService] 检测到VIPS，支持更多图像格式。使用 'prominentcolor' (K-Means算法) 来查找主色调。")
	return &ColorService{vipsPath: vipsPath}
}

// GetPrimaryColor 返回 #rrggbb 形式的主色调
func (s *ColorService) GetPrimaryColor(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil && s.vipsPath != "" {
		log.Printf("[ColorService] 标准库解码失败 (%v)，尝试使用VIPS解码", err)
		img, err = s.decodeWithVips(data)
		if err != nil {
			return "", fmt.Errorf("VIPS解码也失败: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("解码图片失败: %w", err)
	}

	if b := img.Bounds(); b.Dx() > sampleSize || b.Dy() > sampleSize {
		img = imaging.Fit(img, sampleSize, sampleSize, imaging.Box)
	}

	colors, err := prominentcolor.KmeansWithArgs(prominentcolor.ArgumentNoCropping, img)
	if err != nil {
		return "", fmt.Errorf("使用 prominentcolor (K-Means) 提取主色调失败: %w", err)
	}
	if len(colors) == 0 {
		return "", fmt.Errorf("prominentcolor (K-Means) 未能找到任何主色调")
	}

	c := colors[0].Color
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B), nil
}

// decodeWithVips 使用VIPS将图像转换为 JPEG 然后解码
func (s *ColorService) decodeWithVips(data []byte) (image.Image, error) {
	in, err := os.CreateTemp("", "color_input_*")
	if err != nil {
		return nil, fmt.Errorf("创建临时文件失败: %w", err)
	}
	outPath := in.Name() + ".jpg"
	defer func() {
		os.Remove(in.Name())
		os.Remove(outPath)
	}()

	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, fmt.Errorf("写入临时文件失败: %w", err)
	}
	in.Close()

	cmd := exec.Command(s.vipsPath, "copy", in.Name(), outPath+"[Q=95]")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("VIPS转换失败: %w, stderr: %s", err, stderr.String())
	}

	converted, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("读取转换后文件失败: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(converted))
	if err != nil {
		return nil, fmt.Errorf("解码转换后图片失败: %w", err)
	}
	return img, nil
}
