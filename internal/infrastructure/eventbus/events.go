package eventbus

import "time"

// 预定义事件类型常量
const (
	EventTypeTurnCompleted  = "turn.completed"
	EventTypeMediaGenerated = "media.generated"
	EventTypeMediaFailed    = "media.failed"
	EventTypeVideoJobState  = "video.job.state"
	EventTypeMemorySaved    = "memory.saved"
)

// TurnCompletedPayload 对话轮次完成
type TurnCompletedPayload struct {
	ChatID   string        `json:"chat_id"`
	Model    string        `json:"model"`
	Path     string        `json:"path"` // chat, image, video
	Duration time.Duration `json:"duration"`
	Failed   bool          `json:"failed"`
}

// MediaGeneratedPayload 媒体生成成功
type MediaGeneratedPayload struct {
	ChatID     string `json:"chat_id,omitempty"`
	ArtifactID string `json:"artifact_id"`
	Kind       string `json:"kind"` // audio, image, video
	Provider   string `json:"provider"`
	URL        string `json:"url"`
	Bytes      int    `json:"bytes"`
}

// MediaFailedPayload 媒体生成失败
type MediaFailedPayload struct {
	ChatID    string `json:"chat_id,omitempty"`
	Kind      string `json:"kind"`
	Provider  string `json:"provider"`
	ErrorKind string `json:"error_kind"` // http, connection, timeout, job_failed, protocol, configuration
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// VideoJobStatePayload 视频任务状态变化
type VideoJobStatePayload struct {
	JobID string `json:"job_id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Poll  int    `json:"poll"`
}

// MemorySavedPayload 自动记忆写入
type MemorySavedPayload struct {
	MemoryID string `json:"memory_id"`
	Tier     string `json:"tier"`
}
