package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"receiptd/internal/domain"
	"receiptd/internal/usecase"
)

var _ usecase.KeySetRepository = (*KeySetRepository)(nil)

type KeySetRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewKeySetRepository(db *gorm.DB) *KeySetRepository {
	return &KeySetRepository{db: db, now: time.Now}
}

// Put inserts rec or replaces the keys of the set with the same name.
func (r *KeySetRepository) Put(ctx context.Context, rec domain.StoredKeySet) (domain.StoredKeySet, error) {
	if r.db == nil {
		return domain.StoredKeySet{}, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, errDBUnavailable)
	}
	model, err := toKeySetModel(rec)
	if err != nil {
		return domain.StoredKeySet{}, err
	}
	if model.ID == "" {
		if model.ID, err = NewUUID(); err != nil {
			return domain.StoredKeySet{}, err
		}
	}
	now := r.now().UTC()
	model.CreatedAt = now
	model.UpdatedAt = now
	if model.FetchedAt.IsZero() {
		model.FetchedAt = now
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"source_url", "keys_json", "fetched_at", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return domain.StoredKeySet{}, fmt.Errorf("upsert key set %q: %w", rec.Name, err)
	}

	stored, err := r.Get(ctx, rec.Name)
	if err != nil {
		return domain.StoredKeySet{}, err
	}
	return *stored, nil
}

func (r *KeySetRepository) Get(ctx context.Context, name string) (*domain.StoredKeySet, error) {
	if r.db == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, errDBUnavailable)
	}
	var model KeySetModel
	err := r.db.WithContext(ctx).First(&model, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return fromKeySetModel(model)
}

func (r *KeySetRepository) List(ctx context.Context) ([]domain.StoredKeySet, error) {
	if r.db == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, errDBUnavailable)
	}
	var models []KeySetModel
	if err := r.db.WithContext(ctx).Order("name asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.StoredKeySet, 0, len(models))
	for _, model := range models {
		rec, err := fromKeySetModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func toKeySetModel(rec domain.StoredKeySet) (KeySetModel, error) {
	keys, err := json.Marshal(rec.Keys)
	if err != nil {
		return KeySetModel{}, fmt.Errorf("encode key set: %w", err)
	}
	return KeySetModel{
		ID:        rec.ID,
		Name:      rec.Name,
		SourceURL: rec.SourceURL,
		KeysJSON:  keys,
		FetchedAt: rec.FetchedAt.UTC(),
	}, nil
}

func fromKeySetModel(model KeySetModel) (*domain.StoredKeySet, error) {
	ks, err := domain.ParseKeySet(model.KeysJSON)
	if err != nil {
		return nil, fmt.Errorf("decode stored key set %q: %w", model.Name, err)
	}
	return &domain.StoredKeySet{
		ID:        model.ID,
		Name:      model.Name,
		SourceURL: model.SourceURL,
		Keys:      ks,
		FetchedAt: model.FetchedAt,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}
