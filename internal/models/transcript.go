// Package models defines the wire structures exchanged with the backend.
package models

// TranscriptRecord is one transcript line posted to the log store.
type TranscriptRecord struct {
	Room        string `json:"room"`
	Type        string `json:"type"` // "user" or "agent"
	Text        string `json:"text"`
	TS          int64  `json:"ts"` // unix millis of first arrival
	Participant string `json:"participant"`
}

// Document is a knowledge-base entry owned by the backend.
type Document struct {
	DocID      string `json:"doc_id"`
	Filename   string `json:"filename"`
	UploadDate string `json:"upload_date"`
	ChunkCount int    `json:"chunk_count"`
}

// UploadResult is returned by the backend after a document upload.
type UploadResult struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
}
