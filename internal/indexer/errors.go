package indexer

import "fmt"

// ErrorKind classifies a per-file failure
type ErrorKind string

const (
	KindNotFound        ErrorKind = "notFound"
	KindReadFailure     ErrorKind = "readFailure"
	KindProviderFailure ErrorKind = "providerFailure"
	KindStorageFailure  ErrorKind = "storageFailure"
	KindCancelled       ErrorKind = "cancelled"
)

// FileError records why one file was not indexed
type FileError struct {
	Path    string    `json:"path"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Message)
}

type status int

const (
	statusIndexed status = iota
	statusSkipped
	statusFailed
	statusCancelled
)

// outcome is the result of processing one file
type outcome struct {
	status   status
	kind     ErrorKind
	err      error
	billable bool
}

func failed(kind ErrorKind, err error) outcome {
	return outcome{status: statusFailed, kind: kind, err: err}
}

func cancelled(err error) outcome {
	return outcome{status: statusCancelled, kind: KindCancelled, err: err}
}

// fileError returns the error to report for o, if any
func (o outcome) fileError(path string) *FileError {
	if o.err == nil || o.kind == "" {
		return nil
	}
	return &FileError{Path: path, Kind: o.kind, Message: o.err.Error()}
}

func (o outcome) message(name string) string {
	switch o.status {
	case statusIndexed:
		return "indexed " + name
	case statusSkipped:
		if o.kind == KindNotFound {
			return "missing " + name
		}
		return "unchanged " + name
	case statusCancelled:
		return "cancelled " + name
	default:
		return fmt.Sprintf("failed %s (%s)", name, o.kind)
	}
}
