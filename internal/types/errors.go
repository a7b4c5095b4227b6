package types

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline-fatal error by the stage that produced it.
type Kind string

const (
	KindDownload      Kind = "download"
	KindExtraction    Kind = "extraction"
	KindTranscription Kind = "transcription"
	KindAnalysis      Kind = "analysis"
	KindRender        Kind = "render"
	KindParse         Kind = "parse"
	KindInternal      Kind = "internal"
)

type StageError struct {
	Kind Kind
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) ErrorKind() string { return string(e.Kind) }

// StageErr wraps err with kind. An error that already carries a kind keeps it.
func StageErr(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Kind: kind, Err: err}
}

func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
