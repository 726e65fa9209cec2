package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"profilebus/internal/database"
	"profilebus/internal/models"
)

// NoActiveToken is submitted as the token name when no profile is active.
const NoActiveToken = "(None active)"

var (
	ErrEmptyKey     = errors.New("key cannot be empty")
	ErrNotPublished = errors.New("event was not published")
)

// Store persists profiles.
type Store interface {
	ListProfiles(ctx context.Context) ([]models.Profile, error)
	GetProfile(ctx context.Context, id int64) (*models.Profile, error)
	GetActiveProfile(ctx context.Context) (*models.Profile, error)
	CreateProfile(ctx context.Context, p *models.Profile) error
	UpdateProfile(ctx context.Context, p *models.Profile) error
	DeleteProfile(ctx context.Context, id int64) error
}

// EventPublisher announces profile changes and key submissions.
type EventPublisher interface {
	PublishKeySubmitted(ctx context.Context, keyValue, tokenName, userID string) bool
	PublishProfileCreated(ctx context.Context, profileID int64, data map[string]any) bool
	PublishProfileUpdated(ctx context.Context, profileID int64, data map[string]any) bool
	PublishProfileDeleted(ctx context.Context, profileID int64) bool
}

// Service applies profile mutations to the store and publishes a
// profile event after each one succeeds. Event delivery is best effort: a
// failed publish is logged and does not undo the mutation.
type Service struct {
	store     Store
	publisher EventPublisher
	logger    *zerolog.Logger
}

// NewService builds a Service. publisher may be nil, in which case no
// events are sent.
func NewService(store Store, publisher EventPublisher, logger *zerolog.Logger) *Service {
	l := logger.With().Str("component", "profiles").Logger()
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    &l,
	}
}

func (s *Service) List(ctx context.Context) ([]models.Profile, error) {
	return s.store.ListProfiles(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Profile, error) {
	return s.store.GetProfile(ctx, id)
}

// Active returns the active profile, or nil when none is active.
func (s *Service) Active(ctx context.Context) (*models.Profile, error) {
	p, err := s.store.GetActiveProfile(ctx)
	if errors.Is(err, database.ErrProfileNotFound) {
		return nil, nil
	}
	return p, err
}

// Create stores a new, inactive profile.
func (s *Service) Create(ctx context.Context, p *models.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Active = false
	if err := s.store.CreateProfile(ctx, p); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	if s.publisher != nil && !s.publisher.PublishProfileCreated(ctx, p.ID, p.EventData()) {
		s.logger.Warn().Int64("profile_id", p.ID).Msg("profile_created event not published")
	}
	return nil
}

// Update overwrites the profile. Every other profile ends up inactive.
func (s *Service) Update(ctx context.Context, p *models.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if s.publisher != nil && !s.publisher.PublishProfileUpdated(ctx, p.ID, p.EventData()) {
		s.logger.Warn().Int64("profile_id", p.ID).Msg("profile_updated event not published")
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteProfile(ctx, id); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if s.publisher != nil && !s.publisher.PublishProfileDeleted(ctx, id) {
		s.logger.Warn().Int64("profile_id", id).Msg("profile_deleted event not published")
	}
	return nil
}

// SubmitKey publishes a key submission for the active profile's token and
// returns the token name used.
func (s *Service) SubmitKey(ctx context.Context, key, userID string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}

	tokenName := NoActiveToken
	active, err := s.Active(ctx)
	if err != nil {
		return "", fmt.Errorf("load active profile: %w", err)
	}
	if active != nil {
		tokenName = active.TokenName
	}

	if s.publisher == nil || !s.publisher.PublishKeySubmitted(ctx, key, tokenName, userID) {
		return tokenName, ErrNotPublished
	}
	s.logger.Info().Str("token_name", tokenName).Msg("key submitted")
	return tokenName, nil
}
