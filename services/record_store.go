package services

import (
	"context"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/google/uuid"
)

// RecordStore is the durable keyed collection of IPO records and subscribers.
// Implementations return shared store errors for connectivity and query failures,
// and a duplicate error when a subscriber email is already present.
type RecordStore interface {
	ListAll(ctx context.Context) ([]models.IPORecord, error)
	Exists(ctx context.Context, key models.RecordKey) (bool, error)
	Upsert(ctx context.Context, record models.IPORecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.IPORecord, error)
	InsertSubscriber(ctx context.Context, email string) (*models.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]models.Subscriber, error)
	Ping(ctx context.Context) error
}
