package domain

import "time"

type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityPDF   Modality = "pdf"
)

func ParseModality(s string) Modality {
	switch Modality(s) {
	case ModalityImage:
		return ModalityImage
	case ModalityPDF:
		return ModalityPDF
	default:
		return ModalityText
	}
}

type ParsingStatus string

const (
	ParsingPending   ParsingStatus = "pending"
	ParsingRunning   ParsingStatus = "parsing"
	ParsingCompleted ParsingStatus = "completed"
	ParsingError     ParsingStatus = "error"
)

// CanTransition enforces monotonic forward movement; error is terminal
// for this field only.
func (s ParsingStatus) CanTransition(to ParsingStatus) bool {
	order := map[ParsingStatus]int{
		ParsingPending:   0,
		ParsingRunning:   1,
		ParsingCompleted: 2,
		ParsingError:     2,
	}
	from, okFrom := order[s]
	next, okTo := order[to]
	if !okFrom || !okTo {
		return false
	}
	if s == ParsingCompleted || s == ParsingError {
		return false
	}
	return next > from
}

type ClassificationStatus string

const (
	ClassificationPending         ClassificationStatus = "pending"
	ClassificationQuickProcessing ClassificationStatus = "quick_processing"
	ClassificationQuickDone       ClassificationStatus = "quick_done"
	ClassificationAIProcessing    ClassificationStatus = "ai_processing"
	ClassificationCompleted       ClassificationStatus = "completed"
	ClassificationError           ClassificationStatus = "error"
)

func (s ClassificationStatus) CanTransition(to ClassificationStatus) bool {
	order := map[ClassificationStatus]int{
		ClassificationPending:         0,
		ClassificationQuickProcessing: 1,
		ClassificationQuickDone:       2,
		ClassificationAIProcessing:    3,
		ClassificationCompleted:       4,
		ClassificationError:           4,
	}
	from, okFrom := order[s]
	next, okTo := order[to]
	if !okFrom || !okTo {
		return false
	}
	if s == ClassificationCompleted || s == ClassificationError {
		return false
	}
	return next > from
}

// ProcessingState tracks the two independent pipeline fields plus the
// visibility gate. ShowClassification is separate from label existence:
// a provisional label may exist while the gate is still closed.
type ProcessingState struct {
	Parsing            ParsingStatus        `json:"parsing_status"`
	Classification     ClassificationStatus `json:"classification_status"`
	ShowClassification bool                 `json:"show_classification"`
}

func NewProcessingState() ProcessingState {
	return ProcessingState{
		Parsing:        ParsingPending,
		Classification: ClassificationPending,
	}
}

// Content is one ingested document or image and its derived text.
type Content struct {
	ID        string          `json:"id"`
	SourceURI string          `json:"source_uri"`
	Modality  Modality        `json:"modality"`
	Title     string          `json:"title"`
	Text      string          `json:"text"`
	State     ProcessingState `json:"state"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FileExtension returns the lowercase extension of the source URI,
// including the dot, or "" when there is none.
func (c *Content) FileExtension() string {
	uri := c.SourceURI
	dot := -1
	for i := len(uri) - 1; i >= 0; i-- {
		if uri[i] == '.' {
			dot = i
			break
		}
		if uri[i] == '/' {
			break
		}
	}
	if dot < 0 || dot == len(uri)-1 {
		return ""
	}
	return toLowerASCII(uri[dot:])
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
