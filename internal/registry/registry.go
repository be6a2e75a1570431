package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/logger"
)

// DocumentRow is the persisted form of a domain.Document.
type DocumentRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	Filename   string `gorm:"index"`
	Status     string `gorm:"size:16;index"`
	ChunkCount int
	Error      string
	UploadedAt time.Time
	UpdatedAt  time.Time
}

func (DocumentRow) TableName() string { return "documents" }

func (r DocumentRow) toDomain() domain.Document {
	return domain.Document{
		ID:         r.ID,
		Filename:   r.Filename,
		UploadedAt: r.UploadedAt,
		Status:     domain.DocumentStatus(r.Status),
		ChunkCount: r.ChunkCount,
	}
}

// Registry records which documents exist and where they are in ingestion.
// The primary key on doc_id turns a concurrent second registration into a
// duplicate, even across processes sharing the database file.
type Registry struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open opens (or creates) the sqlite database at path and migrates it.
func Open(path string, log *logger.Logger) (*Registry, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open registry %s: %w", path, err)
	}
	return New(db, log)
}

func New(db *gorm.DB, log *logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := db.AutoMigrate(&DocumentRow{}); err != nil {
		return nil, fmt.Errorf("migrate registry: %w", err)
	}
	return &Registry{db: db, log: log.With("repo", "DocumentRegistry")}, nil
}

// Register inserts doc in the indexing state. A row left behind by a failed
// ingestion is replaced; any other existing row yields a *domain.DuplicateError.
func (r *Registry) Register(ctx context.Context, doc domain.Document) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing DocumentRow
		err := tx.Where("id = ?", doc.ID).Take(&existing).Error
		switch {
		case err == nil && existing.Status == string(domain.StatusFailed):
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
		case err == nil:
			return &domain.DuplicateError{DocumentID: doc.ID, Filename: existing.Filename}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		row := DocumentRow{
			ID:         doc.ID,
			Filename:   doc.Filename,
			Status:     string(domain.StatusIndexing),
			UploadedAt: doc.UploadedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &domain.DuplicateError{DocumentID: doc.ID, Filename: doc.Filename}
			}
			return err
		}
		return nil
	})
}

func (r *Registry) MarkIndexed(ctx context.Context, id string, chunks int) error {
	return r.update(ctx, id, map[string]any{
		"status":      string(domain.StatusIndexed),
		"chunk_count": chunks,
		"error":       "",
	})
}

func (r *Registry) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.update(ctx, id, map[string]any{
		"status": string(domain.StatusFailed),
		"error":  msg,
	})
}

func (r *Registry) update(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&DocumentRow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %s not registered", id)
	}
	return nil
}

// Remove deletes the row for id. Removing an unknown id is not an error.
func (r *Registry) Remove(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&DocumentRow{}).Error
}

func (r *Registry) Get(ctx context.Context, id string) (domain.Document, bool, error) {
	var row DocumentRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, err
	}
	return row.toDomain(), true, nil
}

// List returns every registered document, oldest upload first.
func (r *Registry) List(ctx context.Context) ([]domain.Document, error) {
	var rows []DocumentRow
	if err := r.db.WithContext(ctx).Order("uploaded_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
