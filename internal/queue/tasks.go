package queue

const TypeDocumentIngest = "document:ingest"

// DocumentIngestPayload carries already extracted text, so the worker
// needs no access to the uploaded file.
type DocumentIngestPayload struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}
