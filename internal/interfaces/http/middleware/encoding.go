package middleware

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// EnsureUTF8Body 把请求体统一转换为 UTF-8
// 优先使用 Content-Type 中声明的 charset；未声明且内容不是合法 UTF-8 时按 GBK 尝试，
// Windows 中文终端下用 curl 发送的消息通常是 GBK。转换失败时保留原始内容。
func EnsureUTF8Body() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		c.Request.Body.Close()
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		if converted, ok := toUTF8(body, declaredEncoding(c.GetHeader("Content-Type"))); ok {
			body = converted
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Request.ContentLength = int64(len(body))
		c.Next()
	}
}

// declaredEncoding 解析 Content-Type 中的 charset，UTF-8 或未声明返回 nil
func declaredEncoding(contentType string) encoding.Encoding {
	if contentType == "" {
		return nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil
	}
	charset := strings.TrimSpace(params["charset"])
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil
	}
	return enc
}

func toUTF8(body []byte, enc encoding.Encoding) ([]byte, bool) {
	if enc == nil {
		if utf8.Valid(body) {
			return nil, false
		}
		enc = simplifiedchinese.GBK
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil || !utf8.Valid(out) {
		return nil, false
	}
	return out, true
}
