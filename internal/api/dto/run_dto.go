package dto

type ListRunsRequest struct {
	Filename string `form:"filename"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListRunsResponse struct {
	Runs       []RunDTO `json:"runs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type RunDTO struct {
	RunID         string `json:"run_id"`
	Filename      string `json:"filename"`
	Status        string `json:"status"`
	TotalRows     int    `json:"total_rows"`
	PredictedRows int    `json:"predicted_rows"`
	FailedRows    int    `json:"failed_rows"`
	OutputFile    string `json:"output_file,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	ErrorMessage  string `json:"error_message,omitempty"`
	WorkerID      string `json:"worker_id"`
	StartedAt     string `json:"started_at"`
	FinishedAt    string `json:"finished_at"`
}

type UploadResponse struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Status   string `json:"status"`
}
