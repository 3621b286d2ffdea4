package casdoor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/redis/go-redis/v9"

	"github.com/prepstack/attempt-service/internal/cache"
	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

// CasdoorConfig holds the configuration for Casdoor connection
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

// UserCasdoor resolves users from Casdoor with a short Redis cache in front.
// The attempt engine only ever reads users; account management lives in the
// identity provider.
type UserCasdoor struct {
	client *casdoorsdk.Client
	users  *cache.CacheHelper
	config CasdoorConfig

	cacheTTL time.Duration
}

func NewUserCasdoor(config CasdoorConfig, redisClient *redis.Client) repositories.UserRepository {
	client := casdoorsdk.NewClient(
		config.Endpoint,
		config.ClientID,
		config.ClientSecret,
		config.Certificate,
		config.OrganizationName,
		config.ApplicationName,
	)

	return &UserCasdoor{
		client:   client,
		users:    cache.NewCacheHelper(redisClient, "user:"),
		config:   config,
		cacheTTL: 15 * time.Minute,
	}
}

func (u *UserCasdoor) GetByID(ctx context.Context, id string) (*models.User, error) {
	cacheKey := fmt.Sprintf("id:%s", id)

	var cached models.User
	if err := u.users.Get(ctx, cacheKey, &cached); err == nil && cached.ID != "" {
		return &cached, nil
	}

	casdoorUser, err := u.client.GetUserByUserId(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Casdoor: %w", err)
	}
	if casdoorUser == nil {
		return nil, fmt.Errorf("user not found with ID %s", id)
	}

	user := u.convertCasdoorUser(casdoorUser)

	u.users.Set(ctx, cacheKey, user, u.cacheTTL)
	u.users.Set(ctx, fmt.Sprintf("email:%s", user.Email), user, u.cacheTTL)

	return user, nil
}

func (u *UserCasdoor) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	cacheKey := fmt.Sprintf("email:%s", email)

	var cached models.User
	if err := u.users.Get(ctx, cacheKey, &cached); err == nil && cached.ID != "" {
		return &cached, nil
	}

	casdoorUser, err := u.client.GetUserByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email from Casdoor: %w", err)
	}
	if casdoorUser == nil {
		return nil, fmt.Errorf("user not found with email %s", email)
	}

	user := u.convertCasdoorUser(casdoorUser)

	u.users.Set(ctx, cacheKey, user, u.cacheTTL)
	u.users.Set(ctx, fmt.Sprintf("id:%s", user.ID), user, u.cacheTTL)

	return user, nil
}

func (u *UserCasdoor) ExistsByID(ctx context.Context, id string) (bool, error) {
	user, err := u.client.GetUser(id)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return user != nil, nil
}

func (u *UserCasdoor) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, err := u.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return role == user.Role, nil
}

// ===== CONVERSION =====

func (u *UserCasdoor) convertCasdoorUser(casdoorUser *casdoorsdk.User) *models.User {
	var createdAt, updatedAt time.Time
	if casdoorUser.CreatedTime != "" {
		createdAt, _ = time.Parse(time.RFC3339, casdoorUser.CreatedTime)
	}
	if casdoorUser.UpdatedTime != "" {
		updatedAt, _ = time.Parse(time.RFC3339, casdoorUser.UpdatedTime)
	}

	return &models.User{
		ID:            casdoorUser.Id,
		FullName:      casdoorUser.DisplayName,
		Email:         casdoorUser.Email,
		Role:          u.resolveRole(casdoorUser),
		AvatarURL:     &casdoorUser.Avatar,
		EmailVerified: casdoorUser.EmailVerified,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

// resolveRole maps Casdoor role assignments to the internal role. Admin wins
// over everything else; an unassigned user defaults to student.
func (u *UserCasdoor) resolveRole(casdoorUser *casdoorsdk.User) models.UserRole {
	if casdoorUser.IsAdmin {
		return models.RoleAdmin
	}

	for _, casdoorRole := range casdoorUser.Roles {
		if mapped := MapCasdoorRole(casdoorRole.Name); mapped == models.RoleAdmin {
			return models.RoleAdmin
		}
	}

	for _, casdoorRole := range casdoorUser.Roles {
		return MapCasdoorRole(casdoorRole.Name)
	}

	return models.RoleStudent
}

// MapCasdoorRole translates a Casdoor role name to the internal vocabulary.
func MapCasdoorRole(name string) models.UserRole {
	switch strings.ToLower(name) {
	case "student", "learner":
		return models.RoleStudent
	case "teacher", "instructor", "educator":
		return models.RoleTeacher
	case "proctor", "supervisor":
		return models.RoleProctor
	case "admin", "administrator":
		return models.RoleAdmin
	default:
		return models.RoleStudent
	}
}
