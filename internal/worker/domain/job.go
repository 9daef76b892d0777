package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Job is one queue delivery referencing a file in the base directory
type Job struct {
	Filename    string
	DeliveryTag uint64
	ReceivedAt  time.Time
}

// Run is the outcome of one job, written to the run ledger
type Run struct {
	RunID         string    `db:"run_id"`
	Filename      string    `db:"filename"`
	Status        string    `db:"status"`
	TotalRows     int       `db:"total_rows"`
	PredictedRows int       `db:"predicted_rows"`
	FailedRows    int       `db:"failed_rows"`
	OutputFile    string    `db:"output_file"`
	DurationMs    int64     `db:"duration_ms"`
	ErrorMessage  string    `db:"error_message"`
	WorkerID      string    `db:"worker_id"`
	StartedAt     time.Time `db:"started_at"`
	FinishedAt    time.Time `db:"finished_at"`
}

// ParseFilename decodes a message body into a plain file name.
// The body must be UTF-8 and must not point outside the base directory.
func ParseFilename(body []byte) (string, error) {
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: body is not valid UTF-8", ErrInvalidPayload)
	}

	name := strings.TrimSpace(string(body))
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty file name", ErrInvalidPayload)
	case name == "." || name == "..":
		return "", fmt.Errorf("%w: %q is not a file name", ErrInvalidPayload, name)
	case strings.ContainsAny(name, `/\`):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidPayload, name)
	case strings.ContainsRune(name, 0):
		return "", fmt.Errorf("%w: file name contains NUL", ErrInvalidPayload)
	}

	return name, nil
}
