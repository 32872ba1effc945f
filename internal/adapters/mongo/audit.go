package mongo

import (
	"context"
	"time"

	"github.com/cinebook/booking/internal/domain"
	"github.com/cinebook/booking/internal/observability"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger records every order lifecycle event for later inspection.
// Audit writes are best-effort and never fail the calling operation.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	OrderID   int64     `bson:"order_id"`
	UserID    int64     `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) logEvent(ctx context.Context, action string, orderID, userID int64, data map[string]interface{}) {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		OrderID:   orderID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	if _, err := a.coll.InsertOne(ctx, log); err != nil {
		a.logger.Error("failed to insert audit log", err)
	}
}

func (a *AuditLogger) LogOrderCreated(ctx context.Context, order *domain.Order) {
	seats := make([]string, len(order.Items))
	for i, it := range order.Items {
		seats[i] = it.Snapshot.SeatLabel
	}
	a.logEvent(ctx, "order.created", order.ID, order.UserID, map[string]interface{}{
		"number":     order.Number,
		"total":      order.TotalPrice,
		"seats":      seats,
		"expires_at": order.ExpiresAt.Format(time.RFC3339),
	})
}

func (a *AuditLogger) LogTransition(ctx context.Context, order *domain.Order, from, to domain.OrderStatus) {
	a.logEvent(ctx, "order.transition", order.ID, order.UserID, map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
}
