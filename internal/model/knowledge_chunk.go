package model

import (
	"time"

	"gorm.io/datatypes"
)

type ChunkMetadata struct {
	Source     string `json:"source"`
	UploadedBy uint   `json:"uploaded_by"`
}

// KnowledgeChunk stores a text chunk and its embedding for retrieval.
// Embedding is stored as a JSON array of float32 for portability.
type KnowledgeChunk struct {
	ID        string                            `gorm:"primaryKey;size:36" json:"id"`
	Content   string                            `gorm:"type:text;not null" json:"content"`
	Embedding datatypes.JSONSlice[float32]      `json:"-"`
	Metadata  datatypes.JSONType[ChunkMetadata] `json:"metadata"`
	CreatedAt time.Time                         `json:"created_at"`
}

// ChunkMatch is a retrieved chunk with its similarity to the query.
type ChunkMatch struct {
	ID         string
	Content    string
	Source     string
	Similarity float32
}
