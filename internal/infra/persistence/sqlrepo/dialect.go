/*
 * @Description: 不同数据库之间的 SQL 方言差异
 * @Author: 安知鱼
 * @Date: 2026-09-04 14:02:51
 * @LastEditTime: 2026-10-03 10:40:26
 * @LastEditors: 安知鱼
 */
package sqlrepo

import (
	"strconv"
	"strings"

	"github.com/osirismin/CattoPic/internal/infra/persistence/database"
)

// maxBindParams 每条语句 IN 列表中绑定参数的上限
const maxBindParams = 90

// Dialect 封装占位符、随机排序与“插入忽略冲突”的写法
type Dialect string

const (
	DialectSQLite   Dialect = Dialect(database.TypeSQLite)
	DialectPostgres Dialect = Dialect(database.TypePostgres)
	DialectMySQL    Dialect = Dialect(database.TypeMySQL)
)

// ParseDialect 根据配置中的数据库类型返回方言，未知类型按 SQLite 处理
func ParseDialect(dbType string) Dialect {
	switch database.NormalizeType(dbType) {
	case database.TypePostgres:
		return DialectPostgres
	case database.TypeMySQL:
		return DialectMySQL
	default:
		return DialectSQLite
	}
}

// Rebind 将 ? 占位符转换为 PostgreSQL 的 $n 形式，其他方言原样返回。
// 语句中的字符串字面量不会包含 ?，因此无需处理引号。
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// RandomFunc 返回随机排序函数
func (d Dialect) RandomFunc() string {
	if d == DialectMySQL {
		return "RAND()"
	}
	return "RANDOM()"
}

// InsertIgnore 生成忽略唯一键冲突的插入语句，body 为 "table (cols) VALUES ..." 或 "table (cols) SELECT ..."
func (d Dialect) InsertIgnore(body string) string {
	switch d {
	case DialectMySQL:
		return "INSERT IGNORE INTO " + body
	case DialectPostgres:
		return "INSERT INTO " + body + " ON CONFLICT DO NOTHING"
	default:
		return "INSERT OR IGNORE INTO " + body
	}
}

// placeholders 生成 n 个以逗号分隔的 ?
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// chunkStrings 按 size 切分，避免 IN 列表超出绑定参数限制
func chunkStrings(items []string, size int) [][]string {
	if size <= 0 {
		size = maxBindParams
	}
	var chunks [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func toArgs(items []string) []interface{} {
	args := make([]interface{}, len(items))
	for i, s := range items {
		args[i] = s
	}
	return args
}
