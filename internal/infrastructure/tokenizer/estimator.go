// Package tokenizer 在后端未返回用量时本地估算 Token 数
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// 在包初始化时设置离线加载器，避免运行时下载编码文件
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Estimator Token 估算接口
type Estimator interface {
	CountTokens(text string) int
	Method() string
}

// TiktokenEstimator 使用 tiktoken 估算 Token 数量
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	tiktokenInstance *TiktokenEstimator
	tiktokenOnce     sync.Once
	tiktokenErr      error
)

// GetTiktokenEstimator 获取 TiktokenEstimator 单例
func GetTiktokenEstimator() (*TiktokenEstimator, error) {
	tiktokenOnce.Do(func() {
		// cl100k_base 与主流对话模型的分词接近
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			tiktokenErr = err
			return
		}
		tiktokenInstance = &TiktokenEstimator{encoding: enc}
	})

	if tiktokenErr != nil {
		return nil, tiktokenErr
	}
	return tiktokenInstance, nil
}

// CountTokens 计算文本的 Token 数量
func (e *TiktokenEstimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.encoding.Encode(text, nil, nil))
}

// Method 返回计算方法标识
func (e *TiktokenEstimator) Method() string {
	return "tiktoken"
}

// RuneEstimator 编码不可用时的粗略估算：约 4 个字符一个 Token，CJK 字符各算一个
type RuneEstimator struct{}

// CountTokens 估算 Token 数量
func (RuneEstimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	ascii, wide := 0, 0
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		if size > 1 {
			wide++
		} else {
			ascii++
		}
		i += size
	}
	return wide + (ascii+3)/4
}

// Method 返回计算方法标识
func (RuneEstimator) Method() string {
	return "rune"
}

// NewEstimator 优先使用 tiktoken，加载失败时退回 RuneEstimator
func NewEstimator() Estimator {
	logger := log.NewModuleLogger("tokenizer", "estimator")
	var est Estimator = RuneEstimator{}
	if tk, err := GetTiktokenEstimator(); err != nil {
		logger.Warn("Tiktoken unavailable, falling back to rune estimate",
			"error", err,
		)
	} else {
		est = tk
	}
	logger.Debug("Token estimator ready", "method", est.Method())
	return est
}
