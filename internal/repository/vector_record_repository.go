package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docbot/internal/model"
	"docbot/internal/rag"
)

// VectorRecordRepository is the MySQL-backed rag.VectorStore. Similarity is
// computed in process over the tenant's rows.
type VectorRecordRepository struct {
	db *gorm.DB
}

func NewVectorRecordRepository(db *gorm.DB) *VectorRecordRepository {
	return &VectorRecordRepository{db: db}
}

// Upsert writes one batch in a single transaction.
func (r *VectorRecordRepository) Upsert(ctx context.Context, records []rag.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]model.VectorRecord, len(records))
	for i, rec := range records {
		row, err := toRow(rec)
		if err != nil {
			return err
		}
		rows[i] = row
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("upsert vector records failed: %w", err)
	}
	return nil
}

func (r *VectorRecordRepository) Query(ctx context.Context, filter rag.Filter, vector []float32, topK int) ([]rag.Match, error) {
	q := r.db.WithContext(ctx).Where("user_email = ?", filter.UserEmail)
	if filter.ChatbotName != "" {
		q = q.Where("chatbot_name = ?", filter.ChatbotName)
	}
	var rows []model.VectorRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query vector records failed: %w", err)
	}

	matches := make([]rag.Match, len(rows))
	for i := range rows {
		rec := fromRow(&rows[i])
		matches[i] = rag.Match{Record: rec, Score: rag.CosineSimilarity(vector, rec.Vector)}
	}
	return rag.RankMatches(matches, topK), nil
}

// LookupShare returns the oldest record carrying shareID.
func (r *VectorRecordRepository) LookupShare(ctx context.Context, shareID string) (rag.VectorRecord, bool, error) {
	var row model.VectorRecord
	err := r.db.WithContext(ctx).Where("share_id = ?", shareID).Order("timestamp ASC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rag.VectorRecord{}, false, nil
		}
		return rag.VectorRecord{}, false, fmt.Errorf("query vector record by share id failed: %w", err)
	}
	return fromRow(&row), true, nil
}

func toRow(rec rag.VectorRecord) (model.VectorRecord, error) {
	md := rec.Metadata
	row := model.VectorRecord{
		ID:          rec.ID,
		UserEmail:   md.UserEmail,
		UserName:    md.UserName,
		ChatbotName: md.ChatbotName,
		ShareID:     md.ShareID,
		ChunkIndex:  md.ChunkIndex,
		Text:        md.Text,
		Source:      md.Source,
		Generation:  md.Generation,
		Timestamp:   md.Timestamp,
	}
	if err := row.SetEmbedding(rec.Vector); err != nil {
		return model.VectorRecord{}, fmt.Errorf("encode embedding for %s failed: %w", rec.ID, err)
	}
	return row, nil
}

func fromRow(row *model.VectorRecord) rag.VectorRecord {
	return rag.VectorRecord{
		ID:     row.ID,
		Vector: row.EmbeddingVector(),
		Metadata: rag.Metadata{
			Text:        row.Text,
			ChunkIndex:  row.ChunkIndex,
			Timestamp:   row.Timestamp,
			Source:      row.Source,
			UserName:    row.UserName,
			UserEmail:   row.UserEmail,
			ChatbotName: row.ChatbotName,
			ShareID:     row.ShareID,
			Generation:  row.Generation,
		},
	}
}
