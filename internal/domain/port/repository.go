package port

import (
	"context"

	"github.com/framegrab/framegrab-capture-service/internal/domain/entity"
	"github.com/google/uuid"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.CaptureJob) error
	Update(ctx context.Context, job *entity.CaptureJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.CaptureJob, error)
}
