/*
 * @Description: 统一配置管理 (手动加载 ini + 环境变量覆盖)
 * @Author: 安知鱼
 * @Date: 2026-09-02 10:12:40
 * @LastEditTime: 2026-10-11 21:04:17
 * @LastEditors: 安知鱼
 */
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/spf13/viper"
)

const (
	KeyServerPort    = "System.Port"
	KeyServerDebug   = "System.Debug"
	KeyServerBaseURL = "System.BaseURL"
	KeyServerAPIKey  = "System.APIKey"

	// KeyServerCORSOrigins 逗号分隔，* 表示任意来源
	KeyServerCORSOrigins = "System.CORSOrigins"

	KeyDBType     = "Database.Type"
	KeyDBHost     = "Database.Host"
	KeyDBPort     = "Database.Port"
	KeyDBUser     = "Database.User"
	KeyDBPassword = "Database.Password"
	KeyDBName     = "Database.Name"
	KeyDBDebug    = "Database.Debug"

	KeyRedisAddr     = "Redis.Addr"
	KeyRedisPassword = "Redis.Password"
	KeyRedisDB       = "Redis.DB"

	KeyStorageType      = "Storage.Type"
	KeyStorageBucket    = "Storage.Bucket"
	KeyStorageRegion    = "Storage.Region"
	KeyStorageEndpoint  = "Storage.Endpoint"
	KeyStorageAccessKey = "Storage.AccessKey"
	KeyStorageSecretKey = "Storage.SecretKey"
	KeyStorageLocalPath = "Storage.LocalPath"

	KeyCompressBackend           = "Compress.Backend"
	KeyCompressQuality           = "Compress.Quality"
	KeyCompressMaxWidth          = "Compress.MaxWidth"
	KeyCompressMaxHeight         = "Compress.MaxHeight"
	KeyCompressPreserveAnimation = "Compress.PreserveAnimation"
	KeyCompressGenerateWebP      = "Compress.GenerateWebP"
	KeyCompressGenerateAVIF      = "Compress.GenerateAVIF"
	KeyCompressVipsPath          = "Compress.VipsPath"
	KeyCompressEndpoint          = "Compress.Endpoint"

	KeyUploadExpiryMinutes = "Upload.ExpiryMinutes"
	KeyUploadMaxSize       = "Upload.MaxSize"

	KeyDeliveryTransformStyle = "Delivery.TransformStyle"
	KeyCacheTTL               = "Cache.TTL"
	KeyQueueType              = "Queue.Type"
	KeyLifecyclePurgeSchedule = "Lifecycle.PurgeSchedule"
	KeyRandomOffsetThreshold  = "Random.OffsetThreshold"
	KeyRandomRateLimit        = "Random.RateLimit"
	KeyRandomBurst            = "Random.Burst"

	KeyRateLimitPerMinute = "RateLimit.PerMinute"
	KeyRateLimitBurst     = "RateLimit.Burst"
)

// 定义所有已知的配置键，环境变量覆盖只会检查这些键
var allKeys = []string{
	KeyServerPort, KeyServerDebug, KeyServerBaseURL, KeyServerAPIKey, KeyServerCORSOrigins,
	KeyDBType, KeyDBHost, KeyDBPort, KeyDBUser, KeyDBPassword, KeyDBName, KeyDBDebug,
	KeyRedisAddr, KeyRedisPassword, KeyRedisDB,
	KeyStorageType, KeyStorageBucket, KeyStorageRegion, KeyStorageEndpoint,
	KeyStorageAccessKey, KeyStorageSecretKey, KeyStorageLocalPath,
	KeyCompressBackend, KeyCompressQuality, KeyCompressMaxWidth, KeyCompressMaxHeight,
	KeyCompressPreserveAnimation, KeyCompressGenerateWebP, KeyCompressGenerateAVIF,
	KeyCompressVipsPath, KeyCompressEndpoint,
	KeyUploadExpiryMinutes, KeyUploadMaxSize,
	KeyDeliveryTransformStyle, KeyCacheTTL, KeyQueueType,
	KeyLifecyclePurgeSchedule, KeyRandomOffsetThreshold, KeyRandomRateLimit, KeyRandomBurst,
	KeyRateLimitPerMinute, KeyRateLimitBurst,
}

// 内部默认值，ini 文件和环境变量都没有提供时使用
var defaults = map[string]interface{}{
	KeyServerPort:                "8091",
	KeyServerCORSOrigins:         "*",
	KeyDBType:                    "sqlite",
	KeyDBName:                    "cattopic.db",
	KeyStorageType:               "local",
	KeyStorageLocalPath:          "data/images",
	KeyCompressBackend:           "vips",
	KeyCompressQuality:           90,
	KeyCompressMaxWidth:          3840,
	KeyCompressMaxHeight:         3840,
	KeyCompressPreserveAnimation: true,
	KeyCompressGenerateWebP:      true,
	KeyCompressGenerateAVIF:      true,
	KeyUploadMaxSize:             70 << 20,
	KeyDeliveryTransformStyle:    "cloudflare",
	KeyCacheTTL:                  "10m",
	KeyQueueType:                 "auto",
	KeyLifecyclePurgeSchedule:    "0 */5 * * * *",
	KeyRandomRateLimit:           120,
	KeyRandomBurst:               20,
	KeyRateLimitPerMinute:        600,
	KeyRateLimitBurst:            100,
}

const (
	defaultConfigPath = "data/conf.ini"
	envPrefix         = "CATTOPIC"
)

type Config struct {
	vp *viper.Viper
}

// NewConfig 从 data/conf.ini 加载配置，文件不存在时自动创建默认配置
func NewConfig() (*Config, error) {
	return Load(defaultConfigPath)
}

// Load 从指定路径加载配置，并使用 CATTOPIC_ 前缀的环境变量覆盖
func Load(filePath string) (*Config, error) {
	vp := viper.New()
	for key, value := range defaults {
		vp.SetDefault(key, value)
	}

	// --- 步骤 1: 使用 go-ini 从文件加载配置 ---
	iniCfg, err := ini.Load(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("提示: 未找到 %s，将创建默认配置文件。", filePath)
			if err := createDefaultConfigFile(filePath); err != nil {
				log.Printf("警告: 创建默认配置文件失败: %v，将仅依赖环境变量或内部默认值。", err)
			} else {
				log.Printf("✅ 已创建默认配置文件: %s", filePath)
				iniCfg, err = ini.Load(filePath)
				if err != nil {
					log.Printf("警告: 重新加载配置文件失败: %v", err)
				}
			}
		} else {
			return nil, fmt.Errorf("错误: 解析配置文件 '%s' 失败: %w", filePath, err)
		}
	}

	if iniCfg != nil {
		for _, section := range iniCfg.Sections() {
			for _, key := range section.Keys() {
				viperKey := fmt.Sprintf("%s.%s", section.Name(), key.Name())
				if section.Name() == ini.DefaultSection {
					viperKey = key.Name()
				}
				// 空值不覆盖内部默认值
				if strings.TrimSpace(key.Value()) == "" {
					continue
				}
				vp.Set(viperKey, key.Value())
			}
		}
		log.Printf("从 %s 文件加载了配置。", filePath)
	}

	// --- 步骤 2: 手动检查并覆盖环境变量 ---
	envReplacer := strings.NewReplacer(".", "_")
	for _, key := range allKeys {
		// 例如 CATTOPIC_DATABASE_HOST
		envVarName := fmt.Sprintf("%s_%s", envPrefix, envReplacer.Replace(strings.ToUpper(key)))
		if value, found := os.LookupEnv(envVarName); found {
			vp.Set(key, value)
			log.Printf("发现环境变量: %s, 已覆盖配置 '%s'。", envVarName, key)
		}
	}

	log.Println("✅ 配置加载器初始化完成。")
	return &Config{vp: vp}, nil
}

func (c *Config) GetString(key string) string {
	return c.vp.GetString(key)
}

func (c *Config) GetInt(key string) int {
	return c.vp.GetInt(key)
}

func (c *Config) GetInt64(key string) int64 {
	return c.vp.GetInt64(key)
}

// GetStringList 按逗号切分，忽略空项
func (c *Config) GetStringList(key string) []string {
	var out []string
	for _, item := range strings.Split(c.vp.GetString(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) GetBool(key string) bool {
	return c.vp.GetBool(key)
}

// GetDuration 支持 "10m" 这样的写法，纯数字按秒处理
func (c *Config) GetDuration(key string) time.Duration {
	raw := strings.TrimSpace(c.vp.GetString(key))
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return time.Duration(c.vp.GetInt64(key)) * time.Second
}

// Set 仅用于测试或启动参数覆盖
func (c *Config) Set(key string, value interface{}) {
	c.vp.Set(key, value)
}

// createDefaultConfigFile 创建默认的配置文件
func createDefaultConfigFile(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	defaultConfig := `[System]
Port = 8091
Debug = false
# 图片访问域名，例如 https://img.example.com
BaseURL =
# 管理接口的 API Key，留空则不校验
APIKey =
# 允许跨域的来源，逗号分隔，* 表示任意来源
CORSOrigins = *

[Database]
Type = sqlite
Name = cattopic.db
Debug = false

# Redis 配置（可选）
# 如果不配置或留空 Addr，系统将自动使用内存缓存和内存队列
[Redis]
Addr =
Password =
DB = 0

# 对象存储: local / s3 / oss / cos / qiniu
[Storage]
Type = local
LocalPath = data/images
Bucket =
Region =
Endpoint =
AccessKey =
SecretKey =

# 压缩后端: vips / http / none
[Compress]
Backend = vips
Quality = 90
MaxWidth = 3840
MaxHeight = 3840
PreserveAnimation = true
GenerateWebP = true
GenerateAVIF = true
VipsPath =
Endpoint =

[Upload]
# 0 表示永不过期
ExpiryMinutes = 0
MaxSize = 73400320

[Delivery]
# cloudflare / oss / cos / qiniu
TransformStyle = cloudflare

[Cache]
TTL = 10m

[Queue]
# auto / redis / memory
Type = auto

[Lifecycle]
PurgeSchedule = 0 */5 * * * *

[Random]
# 大于 0 时，候选数超过该值改用 COUNT + 随机 OFFSET
OffsetThreshold = 0
# 随机接口每个 IP 每分钟的请求上限，0 表示不限制
RateLimit = 120
Burst = 20

# 除随机接口和图片文件外，每个 IP 每分钟的请求上限，0 表示不限制
[RateLimit]
PerMinute = 600
Burst = 100
`

	if err := os.WriteFile(filePath, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}
