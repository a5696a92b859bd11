package database

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"printportal-backend/models"
)

// SortableColumns are the storage columns a list may be ordered by.
var SortableColumns = map[string]bool{
	"created_at":      true,
	"updated_at":      true,
	"completed_at":    true,
	"part_number":     true,
	"quantity":        true,
	"deadline":        true,
	"status":          true,
	"request_type":    true,
	"requester_name":  true,
	"requester_email": true,
}

// RequestRepository is the gorm-backed store for print requests.
type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req *models.PrintRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *RequestRepository) Get(ctx context.Context, id string) (*models.PrintRequest, error) {
	var req models.PrintRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// Update applies column changes and returns the stored row.
func (r *RequestRepository) Update(ctx context.Context, id string, changes map[string]any) (*models.PrintRequest, error) {
	res := r.db.WithContext(ctx).Model(&models.PrintRequest{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return nil, res.Error
	}
	return r.Get(ctx, id)
}

func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.PrintRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// List runs a filtered, sorted query. No pagination is applied.
func (r *RequestRepository) List(ctx context.Context, q models.RequestQuery) ([]models.PrintRequest, error) {
	tx := r.db.WithContext(ctx).Model(&models.PrintRequest{})

	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.RequesterEmail != "" {
		tx = tx.Where("requester_email = ?", q.RequesterEmail)
	}
	if q.RequestType != "" {
		tx = tx.Where("request_type = ?", q.RequestType)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		tx = tx.Where(
			"(LOWER(part_number) LIKE ? ESCAPE '!' OR LOWER(requester_name) LIKE ? ESCAPE '!' OR LOWER(requester_email) LIKE ? ESCAPE '!' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '!')",
			pattern, pattern, pattern, pattern,
		)
	}

	column := q.SortColumn
	if !SortableColumns[column] {
		column = "created_at"
	}
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: q.SortDesc})
	if column != "created_at" {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true})
	}

	var out []models.PrintRequest
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
