package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/presskit-builder/apiserver/internal/logging"
	"github.com/presskit-builder/apiserver/types"
)

// PressKitRepository defines persistence operations for press kits.
type PressKitRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]types.PressKitSummary, error)
	GetByOwner(ctx context.Context, ownerID, id string) (types.PressKit, error)
	Create(ctx context.Context, kit types.PressKit) (types.PressKit, error)
	Update(ctx context.Context, ownerID, id string, patch types.PressKitPatch) (types.PressKit, error)
	Delete(ctx context.Context, ownerID, id string) error
	RecordView(ctx context.Context, id string) (types.PressKit, error)
}

// EventPublisher delivers messages to a broker channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// PressKitService encapsulates press kit use-cases. Every owner-facing
// method takes the owner id and never reaches another user's kits.
type PressKitService struct {
	repo         PressKitRepository
	events       EventPublisher
	viewsChannel string
	logger       *slog.Logger
}

// NewPressKitService constructs the service. events may be nil, in which
// case recorded views are not published anywhere.
func NewPressKitService(repo PressKitRepository, events EventPublisher, viewsChannel string, logger *slog.Logger) *PressKitService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PressKitService{
		repo:         repo,
		events:       events,
		viewsChannel: viewsChannel,
		logger:       logger,
	}
}

func (s *PressKitService) List(ctx context.Context, ownerID string) ([]types.PressKitSummary, error) {
	summaries, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, oops.In("presskit_service").With("owner_id", ownerID).Wrapf(err, "list press kits")
	}
	return summaries, nil
}

func (s *PressKitService) Get(ctx context.Context, ownerID, id string) (types.PressKit, error) {
	kit, err := s.repo.GetByOwner(ctx, ownerID, id)
	return kit, oops.In("presskit_service").
		With("owner_id", ownerID, "press_kit_id", id).
		Wrapf(err, "get press kit")
}

// Create stores a new unpublished press kit for ownerID. The slug is derived
// from the title and unset style fields get their defaults.
func (s *PressKitService) Create(ctx context.Context, ownerID string, kit types.PressKit) (types.PressKit, error) {
	kit.ID = ""
	kit.UserID = ownerID
	kit.Slug = types.Slugify(kit.Title)
	kit.IsPublished = false
	kit.ViewCount = 0
	kit.ApplyDefaults()

	created, err := s.repo.Create(ctx, kit)
	return created, oops.In("presskit_service").
		With("owner_id", ownerID, "slug", kit.Slug).
		Wrapf(err, "create press kit")
}

func (s *PressKitService) Update(ctx context.Context, ownerID, id string, patch types.PressKitPatch) (types.PressKit, error) {
	kit, err := s.repo.Update(ctx, ownerID, id, patch)
	return kit, oops.In("presskit_service").
		With("owner_id", ownerID, "press_kit_id", id).
		Wrapf(err, "update press kit")
}

func (s *PressKitService) Delete(ctx context.Context, ownerID, id string) error {
	return oops.In("presskit_service").
		With("owner_id", ownerID, "press_kit_id", id).
		Wrapf(s.repo.Delete(ctx, ownerID, id), "delete press kit")
}

// RecordView counts one view of a published press kit. A failure to publish
// the view event is logged and does not fail the call.
func (s *PressKitService) RecordView(ctx context.Context, id string) error {
	kit, err := s.repo.RecordView(ctx, id)
	if err != nil {
		return oops.In("presskit_service").With("press_kit_id", id).Wrapf(err, "record view")
	}

	if s.events == nil {
		return nil
	}

	payload, err := json.Marshal(types.PressKitViewedEvent{
		PressKitID: kit.ID,
		OwnerID:    kit.UserID,
		Slug:       kit.Slug,
		ViewCount:  kit.ViewCount,
		ViewedAt:   time.Now().UTC(),
	})
	if err != nil {
		logging.LogError(ctx, s.logger, "encode view event", err)
		return nil
	}

	attrs := map[string]string{
		"event_type":   types.EventTypePressKitViewed,
		"press_kit_id": kit.ID,
	}
	if _, err := s.events.Publish(ctx, s.viewsChannel, payload, attrs); err != nil {
		logging.LogError(ctx, s.logger, "publish view event", oops.In("presskit_service").
			With("press_kit_id", kit.ID, "channel", s.viewsChannel).
			Wrapf(err, "publish view event"))
	}
	return nil
}
