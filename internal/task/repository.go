package task

import "context"

type Repository interface {
	Create(ctx context.Context, t *AtomicTask) error
	Get(ctx context.Context, id string) (*AtomicTask, error)
	List(ctx context.Context, projectID, epicID string, status Status, limit, offset int) ([]*AtomicTask, int, error)
	Update(ctx context.Context, t *AtomicTask) error
	Delete(ctx context.Context, id string) error
}
