// Package audit records permission decisions and data-mutating actions to
// an append-only sink for compliance. Entries are written inside the
// request's scoped transaction where one is available, so an aborted
// mutation never leaves a success entry behind.
package audit

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
	"github.com/AstarWorks/AstarManagement-sub017/prometheus"
)

// Sink receives audit entries. Implementations append; nothing updates or
// deletes an entry once written.
type Sink interface {
	Record(ctx context.Context, entry model.AuditEntry) error
}

// GormSink appends entries to the audit_entries table through the given
// statement handle. Passing the request transaction keeps the entry inside
// the mutation's atomicity boundary.
type GormSink struct {
	DB *gorm.DB
}

func (s *GormSink) Record(ctx context.Context, entry model.AuditEntry) error {
	return s.DB.WithContext(ctx).Create(&entry).Error
}

// Recorder fills entries from the request scope and forwards them to the
// sink. A sink failure is never silent: it is logged at error level and
// counted, which is the contract for fire-and-forget callers.
type Recorder struct {
	sink Sink
	log  *zap.Logger
}

// NewRecorder creates a recorder over the given sink.
func NewRecorder(sink Sink, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{sink: sink, log: log}
}

// Record writes one entry, deriving actor and tenant from the context
// scope. Detail values are marshalled to JSON.
func (r *Recorder) Record(ctx context.Context, action, entityType, entityID, result string, detail map[string]any) error {
	entry := model.AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Result:     result,
	}
	if scope, ok := tenantctx.FromContext(ctx); ok {
		entry.TenantID = scope.TenantID
		entry.ActorID = scope.UserID
	}
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err == nil {
			entry.Detail = string(raw)
		}
	}

	if err := r.sink.Record(ctx, entry); err != nil {
		prometheus.AuditWriteFailureCounter.Inc()
		r.log.Error("failed to persist audit entry",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.String("result", result),
			zap.Error(err))
		return err
	}
	return nil
}

// WithSink returns a recorder bound to another sink but sharing the
// logger. Handlers use this to point the recorder at the current
// transaction.
func (r *Recorder) WithSink(sink Sink) *Recorder {
	return &Recorder{sink: sink, log: r.log}
}
