package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MorseWayne/cart_shop/internal/resp"
)

// timeoutBody 超时响应体，与统一信封一致
var timeoutBody = func() string {
	b, _ := json.Marshal(resp.Response[any]{Code: resp.CodeTimeout, Message: "request timeout"})
	return string(b)
}()

// Timeout 为请求上下文设置截止时间，超时后返回 503 与统一错误信封
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		th := http.TimeoutHandler(next, d, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 超时响应不会带上内层设置的头，正常响应会覆盖这里的值
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			th.ServeHTTP(w, r)
		})
	}
}
