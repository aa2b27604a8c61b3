/*
 * @Description: 按客户端 IP 限流，整站与随机接口各用一套令牌桶
 * @Author: 安知鱼
 * @Date: 2025-11-08 00:00:00
 * @LastEditTime: 2026-10-15 16:40:12
 * @LastEditors: 安知鱼
 */
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/osirismin/CattoPic/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// visitorIdleTTL 超过这个时间没有请求的 IP 会在清扫时移除
	visitorIdleTTL = 10 * time.Minute
	sweepInterval  = time.Minute
)

// RateLimitOptions 限流配置，PerMinute 不大于 0 时不限流
type RateLimitOptions struct {
	PerMinute int

	// Burst 允许的突发请求数，不大于 0 时等于 PerMinute
	Burst int

	// Exempt 以这些前缀开头的路径不计数
	Exempt []string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorTable 保存每个 IP 的令牌桶，过期条目在请求路径上顺带清扫
type visitorTable struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newVisitorTable(perMinute, burst int) *visitorTable {
	if burst <= 0 {
		burst = perMinute
	}
	return &visitorTable{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		now:      time.Now,
	}
}

// allow 取一个令牌；拿不到时返回需要等待的时间
func (t *visitorTable) allow(ip string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastSweep) >= sweepInterval {
		for key, v := range t.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(t.visitors, key)
			}
		}
		t.lastSweep = now
	}

	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return false, wait
	}
	return true, 0
}

func (t *visitorTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.visitors)
}

// RateLimit 创建限流中间件，超限返回 429 并带上 Retry-After。
// 客户端 IP 取自 gin 的 ClientIP，只有受信任的代理才能改写。
func RateLimit(opts RateLimitOptions) gin.HandlerFunc {
	if opts.PerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	table := newVisitorTable(opts.PerMinute, opts.Burst)
	return rateLimitWith(table, opts)
}

func rateLimitWith(table *visitorTable, opts RateLimitOptions) gin.HandlerFunc {
	limitHeader := strconv.Itoa(opts.PerMinute)
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || hasAnyPrefix(c.Request.URL.Path, opts.Exempt) {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limitHeader)
		ok, wait := table.allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			response.Fail(c, http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
