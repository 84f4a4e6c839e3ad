package model

// StageKey 流水线阶段键。每张卡片的 ProcessingStatus 对四个阶段各有一条记录。
type StageKey string

const (
	StageClassify    StageKey = "classify"
	StageCategorize  StageKey = "categorize"
	StageMetadata    StageKey = "metadata"
	StageRenderables StageKey = "renderables"
)

// AllStageKeys 固定顺序：classify 永远第一个执行
var AllStageKeys = []StageKey{
	StageClassify,
	StageCategorize,
	StageMetadata,
	StageRenderables,
}

// StageState 单个阶段的状态枚举。
// 约定：
// - pending: 尚未尝试
// - in_progress: 正在执行
// - completed: 成功（terminal）
// - failed: 失败（terminal，只有显式重试会重新进入流水线）
type StageState string

const (
	StagePendingState    StageState = "pending"
	StageInProgressState StageState = "in_progress"
	StageCompletedState  StageState = "completed"
	StageFailedState     StageState = "failed"
)

func (s StageState) Valid() bool {
	switch s {
	case StagePendingState, StageInProgressState, StageCompletedState, StageFailedState:
		return true
	default:
		return false
	}
}

// Terminal completed/failed 都是终态，failed 不会自动重试
func (s StageState) Terminal() bool {
	return s == StageCompletedState || s == StageFailedState
}

// StageStatus 单阶段状态记录。时间戳为毫秒 epoch；0 表示未设置。
// Confidence 用指针表达"没打过分"（completed 默认 1.0 由构造函数负责）。
type StageStatus struct {
	Status      StageState `json:"status"`
	StartedAt   int64      `json:"startedAt,omitempty"`
	CompletedAt int64      `json:"completedAt,omitempty"`
	Confidence  *float64   `json:"confidence,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ProcessingStatus 阶段键 → 状态的持久化映射（卡片上的 jsonb 字段）。
// 不变量：流水线考虑过的每个阶段键都有条目；对该类型不适用的阶段在创建时
// 直接标记 completed，消费方永远不用处理"缺键"。
type ProcessingStatus map[StageKey]StageStatus

func confidencePtr(v float64) *float64 { return &v }

// StageCompleted 置为 completed，confidence 默认 1.0。
// completed 总是盖新的 completedAt。
func StageCompleted(now int64) StageStatus {
	return StageCompletedWith(now, 1.0)
}

// StageCompletedWith 置为 completed 并记录指定 confidence
func StageCompletedWith(now int64, confidence float64) StageStatus {
	return StageStatus{
		Status:      StageCompletedState,
		CompletedAt: now,
		Confidence:  confidencePtr(confidence),
	}
}

// StagePending 初始待执行状态
func StagePending() StageStatus {
	return StageStatus{Status: StagePendingState}
}

// StageInProgress 进入执行中。若存在前一次尝试，保留其 startedAt 和 confidence，
// 反复重试不会丢失最初的尝试时间。
func StageInProgress(now int64, previous *StageStatus) StageStatus {
	s := StageStatus{
		Status:    StageInProgressState,
		StartedAt: now,
	}
	if previous != nil {
		if previous.StartedAt != 0 {
			s.StartedAt = previous.StartedAt
		}
		s.Confidence = previous.Confidence
	}
	return s
}

// StageFailed 置为 failed。保留前一次尝试的 startedAt/confidence，
// completedAt 盖为本次时间，并记录错误消息。
func StageFailed(now int64, errMsg string, previous *StageStatus) StageStatus {
	s := StageStatus{
		Status:      StageFailedState,
		StartedAt:   now,
		CompletedAt: now,
		Error:       errMsg,
	}
	if previous != nil {
		if previous.StartedAt != 0 {
			s.StartedAt = previous.StartedAt
		}
		s.Confidence = previous.Confidence
	}
	return s
}

// WithStageStatus 返回替换了单个阶段键的新映射，绝不修改输入。
// current 为 nil 时等价于从空映射开始。
func WithStageStatus(current ProcessingStatus, stage StageKey, status StageStatus) ProcessingStatus {
	out := make(ProcessingStatus, len(current)+1)
	for k, v := range current {
		out[k] = v
	}
	out[stage] = status
	return out
}

// ShouldRunRenderablesStage 只有 image/video/document 需要生成渲染物
func ShouldRunRenderablesStage(t CardType) bool {
	return StagePlanFor(t).Renderables
}

// ShouldRunCategorizeStage 只有 link 需要分类到来源类目
func ShouldRunCategorizeStage(t CardType) bool {
	return StagePlanFor(t).Categorize
}

// InitialStatusParams buildInitialProcessingStatus 的输入。
// 三个 override 用于卡片以不同目的重新提交时（例如类型变更后）强制跳过某阶段。
type InitialStatusParams struct {
	Now                  int64
	CardType             CardType
	ClassificationStatus *StageStatus
	MetadataStageNeeded  *bool
	CategorizeOverride   *bool
	RenderablesOverride  *bool
}

// BuildInitialProcessingStatus 构造完整的初始状态：每个键都有值，
// 阶段适用则 pending，否则直接 completed(now)。纯函数，无错误分支。
// 真实创建路径和批量默认内容播种共用同一个构造器。
func BuildInitialProcessingStatus(p InitialStatusParams) ProcessingStatus {
	out := ProcessingStatus{}

	if p.ClassificationStatus != nil {
		out[StageClassify] = *p.ClassificationStatus
	} else {
		out[StageClassify] = StagePending()
	}

	categorize := ShouldRunCategorizeStage(p.CardType)
	if p.CategorizeOverride != nil {
		categorize = *p.CategorizeOverride
	}
	if categorize {
		out[StageCategorize] = StagePending()
	} else {
		out[StageCategorize] = StageCompleted(p.Now)
	}

	metadata := true
	if p.MetadataStageNeeded != nil {
		metadata = *p.MetadataStageNeeded
	}
	if metadata {
		out[StageMetadata] = StagePending()
	} else {
		out[StageMetadata] = StageCompleted(p.Now)
	}

	renderables := ShouldRunRenderablesStage(p.CardType)
	if p.RenderablesOverride != nil {
		renderables = *p.RenderablesOverride
	}
	if renderables {
		out[StageRenderables] = StagePending()
	} else {
		out[StageRenderables] = StageCompleted(p.Now)
	}

	return out
}
