package constant

const (
	IngestRepositorySuccessMessage = "Repository ingested successfully"
	IngestFileSuccessMessage       = "File ingested successfully"
	SessionDeletedMessage          = "Session deleted"
	ChatSuccessMessage             = "Answer generated"
	ChatHistorySuccessMessage      = "Chat history retrieved"
)

// Upload form field
const UploadFormField = "file"
