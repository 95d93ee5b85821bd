package users

import (
	"context"

	"github.com/kollectcare/trialsync/internal/server/models"
)

// Repository persists clinician accounts.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
}
