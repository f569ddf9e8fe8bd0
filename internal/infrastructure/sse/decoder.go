// Package sse 把后端的 SSE 字节流解码为对话事件
package sse

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
)

const (
	// readBufferSize 读缓冲大小
	readBufferSize = 64 * 1024
	// maxLineSize 单行最大长度，大块 agent 观察结果可能很长；超长行所在的帧整体跳过
	maxLineSize = 4 * 1024 * 1024
)

// doneMarker 部分网关在流末尾追加的结束标记
const doneMarker = "[DONE]"

// Decoder 流式事件解码器
// 按到达顺序惰性产出事件，不可重启；非并发安全（Close 除外）
type Decoder struct {
	ctx    context.Context
	body   io.ReadCloser
	reader *bufio.Reader
	logger *slog.Logger

	// last 最近一次见到的关联字段，用于填充传输错误事件
	last   chat.Correlation
	done   bool
	closed atomic.Bool
}

// NewDecoder 创建解码器，ctx 取消时 Next 返回 io.EOF 而非错误事件
func NewDecoder(ctx context.Context, body io.ReadCloser) *Decoder {
	return &Decoder{
		ctx:    ctx,
		body:   body,
		reader: bufio.NewReaderSize(body, readBufferSize),
		logger: log.NewModuleLogger("sse", "decoder"),
	}
}

// Next 返回下一个事件，流结束时返回 io.EOF
// 传输失败（非调用方取消）时先返回一个 StreamError，之后返回 io.EOF
func (d *Decoder) Next() (chat.Event, error) {
	for {
		if d.done {
			return nil, io.EOF
		}

		payload, err := d.readFrame()
		if err != nil {
			d.done = true
			if errors.Is(err, io.EOF) || d.cancelled(err) {
				return nil, io.EOF
			}
			d.logger.Warn("Stream transport failed", "error", err)
			return chat.StreamError{
				Correlation: d.last,
				Code:        "stream_interrupted",
				Message:     err.Error(),
			}, nil
		}

		if payload == doneMarker {
			d.done = true
			return nil, io.EOF
		}

		ev, ok := d.decode(payload)
		if !ok {
			continue
		}
		d.remember(ev.Correlate())
		return ev, nil
	}
}

// Close 释放底层连接，可在其他 goroutine 中调用以中断阻塞的 Next
func (d *Decoder) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.body.Close()
}

// readFrame 读取一个帧的 data 内容（多行 data 以换行连接）
// 帧以空行结束，流末尾未以空行结束的帧同样有效
func (d *Decoder) readFrame() (string, error) {
	var data []string
	oversized := false
	for {
		line, tooLong, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && len(data) > 0 && !oversized {
				return strings.Join(data, "\n"), nil
			}
			return "", err
		}
		if tooLong {
			oversized = true
			continue
		}
		if line == "" {
			if oversized {
				d.logger.Warn("Skipping oversized frame", "limit", maxLineSize)
				data, oversized = nil, false
				continue
			}
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		// 注释行
		if line[0] == ':' {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			// event/id/retry 字段忽略，事件类型以 JSON 中的 event 为准
			continue
		}
		data = append(data, strings.TrimPrefix(value, " "))
	}
}

// readLine 读取一行（不含行尾），超过 maxLineSize 的行丢弃内容并返回 tooLong
func (d *Decoder) readLine() (string, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := d.reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && (len(buf) > 0 || tooLong) {
				return string(buf), tooLong, nil
			}
			return "", false, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > maxLineSize {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// decode 解析一个帧，格式错误或无需处理的事件返回 false
func (d *Decoder) decode(payload string) (chat.Event, bool) {
	var f frame
	if err := sonic.UnmarshalString(payload, &f); err != nil {
		d.logger.Warn("Skipping malformed frame",
			"error", err,
			"payload", truncate(payload, 200),
		)
		return nil, false
	}

	ev, ok := f.toEvent()
	if !ok {
		d.logger.Debug("Skipping event", "event", f.Event)
		return nil, false
	}
	return ev, true
}

// remember 记录关联字段（非空字段覆盖）
func (d *Decoder) remember(c chat.Correlation) {
	if c.TaskID != "" {
		d.last.TaskID = c.TaskID
	}
	if c.ConversationID != "" {
		d.last.ConversationID = c.ConversationID
	}
	if c.MessageID != "" {
		d.last.MessageID = c.MessageID
	}
}

// cancelled 判断读取失败是否由调用方取消引起
func (d *Decoder) cancelled(err error) bool {
	if d.closed.Load() {
		return true
	}
	if d.ctx != nil && d.ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
