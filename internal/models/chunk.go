package models

// ChunkRecord is one entry of a preprocessed chunk file as written by ingestion.
type ChunkRecord struct {
	ChapterTitle string `json:"chapter_title"`
	PageNum      int    `json:"page_num"`
	ChunkText    string `json:"chunk_text"`
}

// Chunk is a span of textbook text with its chapter and page.
// ID is the chunk's position in the store and is stable for the lifetime of the store.
type Chunk struct {
	ID           int    `json:"id"`
	Text         string `json:"chunk_text"`
	ChapterTitle string `json:"chapter"`
	PageNumber   int    `json:"page"`
	SourceBook   string `json:"book"`
}

// RetrievalResult pairs a chunk with its L2 distance to the query. Smaller is closer.
type RetrievalResult struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

// Record converts the chunk back to its ingestion form.
func (c Chunk) Record() ChunkRecord {
	return ChunkRecord{
		ChapterTitle: c.ChapterTitle,
		PageNum:      c.PageNumber,
		ChunkText:    c.Text,
	}
}
