package model

import (
	"time"

	"github.com/bytedance/sonic"
)

// VectorRecord stores one chunk embedding with its tenant routing metadata.
// Embedding is stored as a JSON array of float32.
type VectorRecord struct {
	ID          string    `gorm:"primaryKey;size:96" json:"id"`
	UserEmail   string    `gorm:"size:128;not null;index:idx_vector_tenant,priority:1" json:"user_email"`
	UserName    string    `gorm:"size:128" json:"user_name"`
	ChatbotName string    `gorm:"size:128;not null;index:idx_vector_tenant,priority:2" json:"chatbot_name"`
	ShareID     string    `gorm:"size:260;not null;index" json:"share_id"`
	ChunkIndex  int       `gorm:"not null" json:"chunk_index"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	Source      string    `gorm:"size:64" json:"source"`
	Generation  string    `gorm:"size:64;index" json:"generation"`
	Embedding   string    `gorm:"type:mediumtext" json:"-"`
	Timestamp   time.Time `gorm:"not null" json:"timestamp"`
}

// EmbeddingVector returns the parsed embedding; nil on parse error.
func (r *VectorRecord) EmbeddingVector() []float32 {
	if r.Embedding == "" {
		return nil
	}
	var v []float32
	if err := sonic.UnmarshalString(r.Embedding, &v); err != nil {
		return nil
	}
	return v
}

func (r *VectorRecord) SetEmbedding(vec []float32) error {
	if len(vec) == 0 {
		r.Embedding = "[]"
		return nil
	}
	s, err := sonic.MarshalString(vec)
	if err != nil {
		return err
	}
	r.Embedding = s
	return nil
}
