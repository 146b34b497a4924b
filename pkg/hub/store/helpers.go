package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Generic GORM helpers shared by the per-entity store files. They operate
// on the raw *gorm.DB so they stay decoupled from Store, and they map
// gorm.ErrRecordNotFound and unique-constraint failures to domain errors.

// getByField retrieves a single record of type T by matching field=value.
func getByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) (*T, error) {
	var result T
	if err := db.WithContext(ctx).Where(field+" = ?", value).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// listAll retrieves all records of type T ordered by the given clause.
// Returns an empty slice (not nil) on success with no records.
func listAll[T any](db *gorm.DB, ctx context.Context, order string) ([]*T, error) {
	results := []*T{}
	q := db.WithContext(ctx)
	if order != "" {
		q = q.Order(order)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// createWithID generates a UUID for the entity if it has no ID, then
// creates it. The idSetter callback sets the generated ID on the entity.
func createWithID[T any](db *gorm.DB, ctx context.Context, entity *T, currentID string, idSetter func(*T, string), dupErr error) (string, error) {
	id := currentID
	if id == "" {
		id = uuid.New().String()
		idSetter(entity, id)
	}
	if err := db.WithContext(ctx).Create(entity).Error; err != nil {
		if dupErr != nil && isUniqueConstraintError(err) {
			return "", dupErr
		}
		return "", err
	}
	return id, nil
}

// deleteByID deletes the record of type T with the given primary key.
// Returns notFoundErr if no rows were affected.
func deleteByID[T any](db *gorm.DB, ctx context.Context, id string, notFoundErr error) error {
	var zero T
	result := db.WithContext(ctx).Where("id = ?", id).Delete(&zero)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFoundErr
	}
	return nil
}
