package pushnotification

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskforge-ai/taskforge/internal/config"
	"github.com/taskforge-ai/taskforge/internal/pushsubscription"
	"github.com/taskforge-ai/taskforge/pkg/cerr"
)

// Service backs the subscription management endpoints.
type Service struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	sender   *Sender
}

func NewService(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, sender *Sender) *Service {
	return &Service{
		vapidEnv: vapidEnv,
		repo:     repo,
		sender:   sender,
	}
}

func (s *Service) VAPIDPublicKey() (string, error) {
	if s.vapidEnv.VAPIDPublicKey == "" {
		return "", cerr.NewError(cerr.FailedPrecondition, "VAPID keys not configured", nil)
	}
	return s.vapidEnv.VAPIDPublicKey, nil
}

func (s *Service) Register(ctx context.Context, endpoint, p256dhKey, authKey string) error {
	verr := cerr.NewError(cerr.InvalidArgument, "invalid push subscription", nil)
	if endpoint == "" {
		verr.AddDetail("endpoint is required")
	}
	if p256dhKey == "" {
		verr.AddDetail("p256dh_key is required")
	}
	if authKey == "" {
		verr.AddDetail("auth_key is required")
	}
	if len(verr.Details) > 0 {
		return verr
	}

	return s.repo.Upsert(ctx, &pushsubscription.Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  endpoint,
		P256dhKey: p256dhKey,
		AuthKey:   authKey,
		CreatedAt: time.Now(),
	})
}

func (s *Service) UnregisterByID(ctx context.Context, id string) error {
	if id == "" {
		return cerr.NewError(cerr.InvalidArgument, "subscription id is required", nil)
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) Unregister(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return cerr.NewError(cerr.InvalidArgument, "endpoint is required", nil)
	}
	return s.repo.DeleteByEndpoint(ctx, endpoint)
}

func (s *Service) SendTest(ctx context.Context) {
	s.sender.SendToAll(ctx, &NotificationPayload{
		Title: "TaskForge Test",
		Body:  "Push notifications are working!",
	})
}
