package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens-backend/internal/apierr"
	"github.com/dermalens/dermalens-backend/internal/logger"
	"github.com/dermalens/dermalens-backend/internal/repos"
	"github.com/dermalens/dermalens-backend/internal/types"
)

type UserService interface {
	GetMe(ctx context.Context) (*types.User, error)
	UpdateSkinProfile(ctx context.Context, skinType, primaryConcern string, sensitivity bool) (*types.User, error)
}

type userService struct {
	db       *gorm.DB
	log      *logger.Logger
	userRepo repos.UserRepo
}

func NewUserService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo) UserService {
	serviceLog := log.With("service", "UserService")
	return &userService{db: db, log: serviceLog, userRepo: userRepo}
}

func (us *userService) GetMe(ctx context.Context) (*types.User, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	users, uErr := us.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
	if uErr != nil {
		return nil, fmt.Errorf("Failed to load user: %w", uErr)
	}
	if len(users) == 0 {
		return nil, apierr.New(http.StatusNotFound, "user_not_found", fmt.Errorf("user not found"))
	}
	return users[0], nil
}

func (us *userService) UpdateSkinProfile(ctx context.Context, skinType, primaryConcern string, sensitivity bool) (*types.User, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	if skinType != "" && !validSkinType(skinType) {
		return nil, apierr.New(http.StatusBadRequest, "invalid_skin_type", fmt.Errorf("unknown skin type %q", skinType))
	}
	if pErr := us.userRepo.UpdateSkinProfile(ctx, nil, userID, skinType, primaryConcern, sensitivity); pErr != nil {
		return nil, fmt.Errorf("Failed to update skin profile: %w", pErr)
	}
	return us.GetMe(ctx)
}
