/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2026-09-02 15:10:56
 * @LastEditTime: 2026-09-29 10:13:27
 * @LastEditors: 安知鱼
 */
package constant

// StorageType 定义了对象存储后端的类型，提供了更强的类型安全
type StorageType string

// 定义支持的存储类型常量
const (
	StorageTypeLocal      StorageType = "local"
	StorageTypeTencentCOS StorageType = "tencent_cos"
	StorageTypeAliOSS     StorageType = "aliyun_oss"
	StorageTypeS3         StorageType = "aws_s3"
	StorageTypeQiniu      StorageType = "qiniu_kodo"

	// DefaultLocalStoragePath 本地存储默认根目录，相对于应用根目录
	DefaultLocalStoragePath = "data/images"
)

// IsValid 检查给定的类型是否是受支持的存储类型
func (t StorageType) IsValid() bool {
	switch t {
	case StorageTypeLocal, StorageTypeTencentCOS, StorageTypeAliOSS, StorageTypeS3, StorageTypeQiniu:
		return true
	default:
		return false
	}
}
