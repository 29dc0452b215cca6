package cutout

// Stage 流水线进度节点
type Stage string

const (
	StageInitializing Stage = "initializing"
	StageResizing     Stage = "resizing"
	StageSegmenting   Stage = "segmenting"
	StageCompositing  Stage = "compositing"
	StageDone         Stage = "done"
)

// Stages 按执行顺序排列
var Stages = []Stage{StageInitializing, StageResizing, StageSegmenting, StageCompositing, StageDone}

// ProgressFunc 进度回调，progress 单调不减，成功时最后一次为 1.0
type ProgressFunc func(stage Stage, progress float64)

func (s Stage) Progress() float64 {
	switch s {
	case StageInitializing:
		return 0.1
	case StageResizing:
		return 0.3
	case StageSegmenting:
		return 0.5
	case StageCompositing:
		return 0.8
	case StageDone:
		return 1
	}
	return 0
}

// Status 展示给用户的状态文案
func (s Stage) Status() string {
	switch s {
	case StageInitializing:
		return "Initializing segmentation model..."
	case StageResizing:
		return "Processing image..."
	case StageSegmenting:
		return "Applying segmentation..."
	case StageCompositing:
		return "Finalizing image..."
	case StageDone:
		return "Done!"
	}
	return string(s)
}
