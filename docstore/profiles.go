package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jupark12/portfolio-grader/models"
)

// UserPath is the document holding a user's profile.
func UserPath(userID string) string {
	return Path("users", userID)
}

// GetUserProfile loads a user profile.
func GetUserProfile(ctx context.Context, s Store, userID string) (*models.UserProfile, error) {
	body, err := s.Get(ctx, UserPath(userID))
	if err != nil {
		return nil, err
	}
	var profile models.UserProfile
	if err := Decode(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", userID, err)
	}
	profile.UserID = userID
	return &profile, nil
}

// SaveUserProfile merges the non-empty fields of profile into the stored
// profile, stamping createdAt on first write.
func SaveUserProfile(ctx context.Context, s Store, profile *models.UserProfile) error {
	if profile.UserID == "" {
		return errors.New("user id is required")
	}
	now := time.Now().UTC()
	profile.UpdatedAt = now

	_, err := s.Get(ctx, UserPath(profile.UserID))
	switch {
	case errors.Is(err, ErrNotFound):
		profile.CreatedAt = now
	case err != nil:
		return err
	default:
		profile.CreatedAt = time.Time{}
	}

	fields, err := ToFields(profile)
	if err != nil {
		return err
	}
	// omitempty does not apply to time.Time.
	if profile.CreatedAt.IsZero() {
		delete(fields, "createdAt")
	}
	return s.Set(ctx, UserPath(profile.UserID), fields)
}
