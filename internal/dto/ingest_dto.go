package dto

type IngestRepositoryRequest struct {
	Repo   string `json:"repo" validate:"required"`
	Branch string `json:"branch" validate:"max=255"`
}

type IngestFileRequest struct {
	FileName string
	Data     []byte
}

type IngestResponse struct {
	SessionId string `json:"session_id"`
	Message   string `json:"message"`
	Chunks    int    `json:"chunks"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
