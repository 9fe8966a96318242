package pipeline

// Stage names reported to observers.
const (
	StageFetch    = "fetch"
	StageFilter   = "filter"
	StageGenerate = "generate"
	StageDone     = "done"
)

// Progress is one pipeline progress notification.
type Progress struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Observer receives progress notifications. A nil Observer is ignored.
type Observer func(Progress)

func (o Observer) emit(p Progress) {
	if o != nil {
		o(p)
	}
}
