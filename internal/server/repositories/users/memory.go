package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/server/models"
)

// MemoryRepository is an in-memory Repository used in tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: map[string]*models.User{}}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	copied := *user
	r.users[user.Login] = &copied
	return user, nil
}

func (r *MemoryRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[login]
	if !ok {
		return nil, common.ErrorNotFound
	}
	copied := *user
	return &copied, nil
}
