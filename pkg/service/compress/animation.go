package compress

import (
	"bytes"
	"encoding/binary"

	"github.com/osirismin/CattoPic/pkg/service/imageinfo"
)

// IsAnimated 扫描字节流中的帧标记，判断是否为多帧动图
func IsAnimated(data []byte, format string) bool {
	switch imageinfo.NormalizeFormat(format) {
	case imageinfo.FormatGIF:
		return gifFrameCount(data) > 1
	case imageinfo.FormatWebP:
		return isAnimatedWebP(data)
	case imageinfo.FormatPNG:
		return isAPNG(data)
	}
	return false
}

// gifFrameCount 按块结构遍历 GIF，统计图像描述符 (0x2C) 的数量
func gifFrameCount(data []byte) int {
	if len(data) < 13 || !bytes.HasPrefix(data, []byte("GIF8")) {
		return 0
	}
	pos := 13
	if flags := data[10]; flags&0x80 != 0 {
		pos += 3 * (1 << ((flags & 0x07) + 1))
	}

	frames := 0
	for pos < len(data) {
		switch data[pos] {
		case 0x2C:
			frames++
			if frames > 1 {
				return frames
			}
			if pos+10 > len(data) {
				return frames
			}
			flags := data[pos+9]
			pos += 10
			if flags&0x80 != 0 {
				pos += 3 * (1 << ((flags & 0x07) + 1))
			}
			pos++ // LZW 最小码长
			pos = skipSubBlocks(data, pos)
		case 0x21:
			pos = skipSubBlocks(data, pos+2)
		case 0x3B:
			return frames
		default:
			return frames
		}
	}
	return frames
}

func skipSubBlocks(data []byte, pos int) int {
	for pos < len(data) {
		size := int(data[pos])
		pos++
		if size == 0 {
			return pos
		}
		pos += size
	}
	return pos
}

// isAnimatedWebP 检查 RIFF 容器中是否有 ANIM 块或多个 ANMF 块
func isAnimatedWebP(data []byte) bool {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WEBP")) {
		return false
	}
	frames := 0
	pos := 12
	for pos+8 <= len(data) {
		fourCC := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		switch fourCC {
		case "ANIM":
			return true
		case "ANMF":
			frames++
			if frames > 1 {
				return true
			}
		}
		// 块按偶数字节对齐
		pos += 8 + size + size%2
	}
	return false
}

// isAPNG 在第一个 IDAT 之前出现 acTL 即为 APNG
func isAPNG(data []byte) bool {
	sig := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if !bytes.HasPrefix(data, sig) {
		return false
	}
	pos := len(sig)
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		switch chunkType {
		case "acTL":
			return true
		case "IDAT", "IEND":
			return false
		}
		pos += 12 + length
	}
	return false
}
