package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/receipt-splitter/internal/model"
	"github.com/zombor/receipt-splitter/internal/storage"
)

const (
	DefaultModelTimeout  = 60 * time.Second
	DefaultUploadTimeout = 30 * time.Second

	// degradedError marks a document built without any usable model output
	degradedError = "Failed to parse receipt data"
)

// Outcome says how much of the model output made it into a Document
type Outcome string

const (
	// OutcomeStructured means the structuring stage produced a full document
	OutcomeStructured Outcome = "structured"
	// OutcomeFallback means only the minimal fallback document was produced
	OutcomeFallback Outcome = "fallback"
	// OutcomeDegraded means neither stage produced usable JSON
	OutcomeDegraded Outcome = "degraded"
)

// Stage names a step of the extraction pipeline
type Stage string

const (
	StageUpload        Stage = "upload"
	StageTranscription Stage = "transcription"
	StageStructuring   Stage = "structuring"
	StageFallback      Stage = "fallback"
)

// Stage results
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultInvalid = "invalid"
)

// Extraction is the result of reading one receipt
type Extraction struct {
	Document *Document
	Outcome  Outcome
	ImageURL string
}

// Uploader stores a receipt image and returns a URL the model can read
type Uploader interface {
	Upload(ctx context.Context, data []byte) (*storage.ImageRef, error)
}

// Recorder is told about every stage result and extraction outcome
type Recorder interface {
	ObserveStage(stage Stage, result string)
	ObserveOutcome(outcome Outcome)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(Stage, string) {}
func (nopRecorder) ObserveOutcome(Outcome)     {}

// UploadError is returned when the image could not be stored. It is the
// only way Extract fails.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading receipt image: %v", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Extractor turns receipt images into Documents with a vision model
type Extractor struct {
	uploader      Uploader
	invoker       model.Invoker
	modelTimeout  time.Duration
	uploadTimeout time.Duration
	recorder      Recorder
	logger        *slog.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithTimeout bounds each model call. A call that times out is handled like
// any other failure of its stage.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.modelTimeout = d
		}
	}
}

// WithUploadTimeout bounds the image upload
func WithUploadTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.uploadTimeout = d
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Extractor) {
		if r != nil {
			e.recorder = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor creates a new Extractor
func NewExtractor(uploader Uploader, invoker model.Invoker, opts ...Option) *Extractor {
	e := &Extractor{
		uploader:      uploader,
		invoker:       invoker,
		modelTimeout:  DefaultModelTimeout,
		uploadTimeout: DefaultUploadTimeout,
		recorder:      nopRecorder{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract uploads the image, has the model transcribe it and then structure
// the transcription. Model problems never fail the call: the result falls
// back to a minimal document and finally to a degraded one. At most three
// prompts are issued. Only an upload failure returns an error.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*Extraction, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, e.uploadTimeout)
	ref, err := e.uploader.Upload(uploadCtx, data)
	cancel()
	if err != nil {
		e.recorder.ObserveStage(StageUpload, ResultError)
		return nil, &UploadError{Err: err}
	}
	e.recorder.ObserveStage(StageUpload, ResultOK)

	rawText := e.transcribe(ctx, ref.URL)

	doc, err := e.structure(ctx, StageStructuring, model.Prompt{
		Text:     structuringPrompt(rawText),
		ImageURL: ref.URL,
	}, compiledDocumentSchema)
	if err == nil {
		return e.finish(ctx, doc, OutcomeStructured, ref.URL), nil
	}
	e.logger.WarnContext(ctx, "Failed to structure receipt, retrying with minimal schema", "image_url", ref.URL, "error", err)

	doc, err = e.structure(ctx, StageFallback, model.Prompt{
		Text:     fallbackPrompt(rawText),
		ImageURL: ref.URL,
	}, compiledFallbackSchema)
	if err == nil {
		return e.finish(ctx, doc, OutcomeFallback, ref.URL), nil
	}
	e.logger.ErrorContext(ctx, "Failed to parse receipt data", "image_url", ref.URL, "error", err)

	return e.finish(ctx, &Document{
		RawText: rawText,
		Error:   degradedError,
		Items:   []Item{},
		Summary: Summary{Total: 0},
	}, OutcomeDegraded, ref.URL), nil
}

// transcribe asks for the verbatim text of the receipt. Any answer is
// accepted; a failed call leaves the transcription empty and the
// structuring stage works from the image alone.
func (e *Extractor) transcribe(ctx context.Context, imageURL string) string {
	out, err := e.invoke(ctx, model.Prompt{
		Text:     transcriptionPrompt(imageURL),
		ImageURL: imageURL,
	})
	if err != nil {
		e.recorder.ObserveStage(StageTranscription, ResultError)
		e.logger.WarnContext(ctx, "Failed to transcribe receipt", "image_url", imageURL, "error", err)
		return ""
	}
	e.recorder.ObserveStage(StageTranscription, ResultOK)
	return strings.TrimSpace(out)
}

func (e *Extractor) structure(ctx context.Context, stage Stage, prompt model.Prompt, schema *jsonschema.Schema) (*Document, error) {
	out, err := e.invoke(ctx, prompt)
	if err != nil {
		e.recorder.ObserveStage(stage, ResultError)
		return nil, err
	}
	doc, err := parseDocument(out, schema)
	if err != nil {
		e.recorder.ObserveStage(stage, ResultInvalid)
		e.logger.DebugContext(ctx, "Unusable model answer", "stage", string(stage), "response", out)
		return nil, err
	}
	e.recorder.ObserveStage(stage, ResultOK)
	return doc, nil
}

func (e *Extractor) invoke(ctx context.Context, prompt model.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()
	return e.invoker.Invoke(ctx, prompt)
}

func (e *Extractor) finish(ctx context.Context, doc *Document, outcome Outcome, imageURL string) *Extraction {
	e.recorder.ObserveOutcome(outcome)
	e.logger.InfoContext(ctx, "Extracted receipt",
		"outcome", string(outcome),
		"image_url", imageURL,
		"items", len(doc.Items),
		"total", doc.Summary.Total,
	)
	return &Extraction{Document: doc, Outcome: outcome, ImageURL: imageURL}
}
