package domain

import (
	"strings"
	"time"
)

type Stage string

const (
	StageUploading        Stage = "uploading"
	StageDownloadingModel Stage = "downloading_model"
	StageTranscribing     Stage = "transcribing"
	StageAnalyzing        Stage = "analyzing"
	StageComplete         Stage = "complete"
	StageError            Stage = "error"
)

// Progress values written on entry to each pipeline step.
const (
	ProgressUploaded       = 0
	ProgressModelCheck     = 5
	ProgressEngineProbed   = 10
	ProgressModelReady     = 20
	ProgressTranscribing   = 25
	ProgressInputValidated = 50
	ProgressTranscribed    = 75
	ProgressSummarizing    = 80
	ProgressQuestioning    = 90
	ProgressComplete       = 100
)

var stageRanges = map[Stage][2]int{
	StageUploading:        {ProgressUploaded, ProgressUploaded},
	StageDownloadingModel: {ProgressModelCheck, ProgressModelReady},
	StageTranscribing:     {ProgressTranscribing, ProgressTranscribed},
	StageAnalyzing:        {ProgressSummarizing, ProgressQuestioning},
	StageComplete:         {ProgressComplete, ProgressComplete},
	StageError:            {0, 100},
}

func (s Stage) Valid() bool {
	_, ok := stageRanges[s]
	return ok
}

func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// Accepts reports whether pct is a legal percentage for the stage.
func (s Stage) Accepts(pct int) bool {
	r, ok := stageRanges[s]
	return ok && pct >= r[0] && pct <= r[1]
}

type Job struct {
	ID                 int64     `json:"id"`
	Filename           string    `json:"filename"`
	UploadedAt         time.Time `json:"uploaded_at"`
	FileSize           *int64    `json:"file_size"`
	AudioDuration      *float64  `json:"audio_duration"`
	SelectedModel      *string   `json:"selected_model"`
	ProcessingStage    Stage     `json:"processing_stage"`
	ProgressPercentage int       `json:"progress_percentage"`
	Transcription      *string   `json:"transcription"`
	Summary            *string   `json:"summary"`
	Questions          *string   `json:"questions"`
	WordCount          int       `json:"word_count"`
}

func NewJob(filename string, size *int64, model *string) *Job {
	if model != nil && strings.TrimSpace(*model) == "" {
		model = nil
	}
	return &Job{
		Filename:        filename,
		UploadedAt:      time.Now().UTC(),
		FileSize:        size,
		SelectedModel:   model,
		ProcessingStage: StageUploading,
	}
}

// ModelOr returns the requested generation model, or fallback when none was selected.
func (j *Job) ModelOr(fallback string) string {
	if j.SelectedModel == nil || strings.TrimSpace(*j.SelectedModel) == "" {
		return fallback
	}
	return *j.SelectedModel
}

// Complete applies the analysis results and moves the job to its final stage.
func (j *Job) Complete(transcript, summary, questions string) {
	j.Transcription = &transcript
	j.Summary = &summary
	j.Questions = &questions
	j.WordCount = WordCount(transcript)
	j.ProcessingStage = StageComplete
	j.ProgressPercentage = ProgressComplete
}

// Fail records a pipeline failure. The percentage is left where the job stopped.
func (j *Job) Fail(message string) {
	transcript := ProcessingFailedTag(message)
	summary := FailedSummary
	questions := FailedQuestions
	j.Transcription = &transcript
	j.Summary = &summary
	j.Questions = &questions
	j.WordCount = 0
	j.ProcessingStage = StageError
}

type Progress struct {
	ID                 int64  `json:"id"`
	ProcessingStage    Stage  `json:"processing_stage"`
	ProgressPercentage int    `json:"progress_percentage"`
	Filename           string `json:"filename"`
}

func (j *Job) Progress() Progress {
	return Progress{
		ID:                 j.ID,
		ProcessingStage:    j.ProcessingStage,
		ProgressPercentage: j.ProgressPercentage,
		Filename:           j.Filename,
	}
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}
