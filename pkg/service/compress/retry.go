package compress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// 转换服务网络抖动的特征字符串，按小写子串匹配。
// 除超时、连接重置和 DNS 失败外，connection refused 与 broken pipe 也算瞬时错误:
// 转换服务滚动重启时会短暂拒绝连接或在写请求体时断开，稍后重试即可成功。
var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"temporary failure in name resolution",
	"unexpected eof",
	"broken pipe",
}

// StatusError 转换服务返回了非 200 状态码
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("转换服务返回状态码 %d: %s", e.Code, e.Body)
}

// IsTransient 判断错误是否值得重试
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// backoff 第 attempt 次失败后的等待时长: base * 2^(attempt-1)
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<(attempt-1))
}

// withRetry 对瞬时错误按指数退避重试，非瞬时错误立即返回
func withRetry(ctx context.Context, label string, attempts int, base time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == attempts {
			break
		}

		wait := backoff(base, attempt)
		log.Printf("[Compress] %s 第 %d 次转换失败，%v 后重试: %v", label, attempt, wait, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}
