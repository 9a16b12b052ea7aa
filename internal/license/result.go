package license

// Stage 校验流程推进到的状态
type Stage int

const (
	StageUnstarted Stage = iota
	StageKeyLoaded
	StageParsed
	StageSignatureChecked
	StageAccepted
)

var stageNames = [...]string{"unstarted", "key_loaded", "parsed", "signature_checked", "accepted"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Result 一次校验的最终分类结果，成功时携带完整载荷
type Result struct {
	Code    Code
	Stage   Stage
	Payload *Payload
	Err     error
}

// Accepted reports whether the license passed every check.
func (r Result) Accepted() bool {
	return r.Code == CodeSuccess && r.Stage == StageAccepted
}

func reject(stage Stage, err error) Result {
	return Result{Code: CodeOf(err), Stage: stage, Err: err}
}
