package servicetype

import (
	"context"

	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListAll(ctx context.Context) ([]ServiceType, error) {
	var entries []ServiceType
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, code, cloud_provider, parent_category, created_at, updated_at
		     FROM service_types
		     ORDER BY cloud_provider, code`).
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
