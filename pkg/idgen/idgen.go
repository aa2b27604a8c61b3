/*
 * @Description: 图片 ID 生成
 * @Author: 安知鱼
 * @Date: 2026-09-05 20:38:15
 * @LastEditTime: 2026-09-30 22:05:59
 * @LastEditors: 安知鱼
 */
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/sqids/sqids-go"
)

// DefaultAlphabet 是默认的字母表
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	mu           sync.RWMutex
	sqidsEncoder *sqids.Sqids
)

// GenerateRandomSeed 生成一个随机的 16 字节种子（返回 32 字符的十六进制字符串）
func GenerateRandomSeed() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("生成随机种子失败: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// shuffleAlphabet 使用种子打乱字母表
func shuffleAlphabet(seed string) string {
	var seedInt int64
	for i, c := range seed {
		seedInt += int64(c) * int64(i+1)
	}

	// 使用确定性随机数生成器
	r := mrand.New(mrand.NewSource(seedInt))

	alphabet := []rune(DefaultAlphabet)
	r.Shuffle(len(alphabet), func(i, j int) {
		alphabet[i], alphabet[j] = alphabet[j], alphabet[i]
	})

	return string(alphabet)
}

// InitSqidsEncoderWithSeed 使用种子初始化 Sqids 编码器。
// 如果 seed 为空字符串，则使用默认字母表
func InitSqidsEncoderWithSeed(seed string) error {
	alphabet := DefaultAlphabet
	if seed != "" {
		alphabet = shuffleAlphabet(seed)
	}

	s, err := sqids.New(
		sqids.Options{
			MinLength: 10,
			Alphabet:  alphabet,
		},
	)
	if err != nil {
		return fmt.Errorf("初始化 Sqids 编码器失败: %w", err)
	}
	mu.Lock()
	sqidsEncoder = s
	mu.Unlock()
	return nil
}

// NewImageID 由毫秒时间戳和 32 位随机数编码出一个 URL 安全的短 ID
func NewImageID() (string, error) {
	mu.RLock()
	enc := sqidsEncoder
	mu.RUnlock()
	if enc == nil {
		return "", fmt.Errorf("Sqids 编码器未初始化")
	}

	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("生成随机数失败: %w", err)
	}
	numbers := []uint64{uint64(time.Now().UnixMilli()), uint64(binary.BigEndian.Uint32(buf[:]))}

	id, err := enc.Encode(numbers)
	if err != nil {
		return "", fmt.Errorf("编码图片ID失败: %w", err)
	}
	return id, nil
}

// DecodeImageTime 从图片 ID 中还原生成时间，用于排查
func DecodeImageTime(id string) (time.Time, error) {
	mu.RLock()
	enc := sqidsEncoder
	mu.RUnlock()
	if enc == nil {
		return time.Time{}, fmt.Errorf("Sqids 编码器未初始化")
	}

	numbers := enc.Decode(id)
	if len(numbers) != 2 {
		return time.Time{}, fmt.Errorf("无法从图片ID解码出预期数量的数字(期望2个，得到%d个)", len(numbers))
	}
	return time.UnixMilli(int64(numbers[0])), nil
}
