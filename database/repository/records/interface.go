package recordsRepo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"slotline/database"
	"slotline/models"
)

// BookingRecordRepository journals confirmed bookings. The journal is
// append-mostly history: sessions expire from the cache, records stay.
type BookingRecordRepository interface {
	Create(ctx context.Context, record models.BookingRecord) (string, error)
	GetByID(ctx context.Context, id string) (*models.BookingRecord, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.BookingRecord, error)
	GetByUserID(ctx context.Context, userID string, limit int64) ([]models.BookingRecord, error)
	DeleteByID(ctx context.Context, id string) error
}

type mongoRecordRepo struct {
	coll *mongo.Collection
}

// NewMongoRecordRepo returns a new BookingRecordRepository instance using MongoDB.
func NewMongoRecordRepo() BookingRecordRepository {
	return &mongoRecordRepo{
		coll: database.DB().Collection("booking_records"),
	}
}
