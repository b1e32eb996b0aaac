package entity

import (
	"time"

	"github.com/google/uuid"
)

// Kind names one of the supported transformation pipelines.
type Kind string

const (
	KindRemoveBackground Kind = "remove_background"
	KindEnhance          Kind = "enhance"
	KindVectorize        Kind = "vectorize"
	KindVectorizeEnhance Kind = "vectorize_enhance"
)

func (k Kind) Valid() bool {
	switch k {
	case KindRemoveBackground, KindEnhance, KindVectorize, KindVectorizeEnhance:
		return true
	default:
		return false
	}
}

// OutputExt is the extension of the artifact produced by the kind.
func (k Kind) OutputExt() string {
	switch k {
	case KindVectorize, KindVectorizeEnhance:
		return ".svg"
	default:
		return ".png"
	}
}

// NeedsScale reports whether the kind runs the enhance stage.
func (k Kind) NeedsScale() bool {
	return k == KindEnhance || k == KindVectorizeEnhance
}

// AllowedScales are the upscale factors a job may request.
var AllowedScales = []int{2, 4, 8}

// DefaultScale is used by the submission layer when the client sends none.
const DefaultScale = 4

func ValidScale(s int) bool {
	for _, v := range AllowedScales {
		if v == s {
			return true
		}
	}
	return false
}

type Params struct {
	Scale         int  `json:"scale,omitempty"`
	EnhanceBefore bool `json:"enhance_before,omitempty"`
}

// Job is the immutable unit of work handed to the task runner.
type Job struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path"`
	Params     Params    `json:"params"`
}

// EffectiveKind folds vectorize+enhance_before into the compound pipeline.
func (j Job) EffectiveKind() Kind {
	if j.Kind == KindVectorize && j.Params.EnhanceBefore {
		return KindVectorizeEnhance
	}
	return j.Kind
}

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailure    Status = "FAILURE"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Result is the terminal payload of a successful task.
type Result struct {
	Status     Status `json:"status"`
	OutputPath string `json:"output_path"`
	Filename   string `json:"filename"`
}

// Task is the state record kept by the result backend.
type Task struct {
	Job
	Priority  int       `json:"priority"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Result    *Result   `json:"result,omitempty"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
