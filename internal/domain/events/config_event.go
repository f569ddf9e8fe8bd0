package events

import "time"

// ConfigFileEvent 配置文件变更事件
type ConfigFileEvent struct {
	// FilePath 配置文件完整路径
	FilePath string
	// Removed 文件是否被删除
	Removed bool
	// EventTime 事件发生时间
	EventTime time.Time
}

// Type 实现 Event 接口
func (e *ConfigFileEvent) Type() EventType {
	return ConfigFileChanged
}

// Timestamp 实现 Event 接口
func (e *ConfigFileEvent) Timestamp() time.Time {
	return e.EventTime
}
