package model

import "time"

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
