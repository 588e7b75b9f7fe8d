package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
)

type memorySink struct {
	entries []model.AuditEntry
	fail    error
}

func (s *memorySink) Record(_ context.Context, entry model.AuditEntry) error {
	if s.fail != nil {
		return s.fail
	}
	s.entries = append(s.entries, entry)
	return nil
}

func scopedContext() context.Context {
	return tenantctx.WithScope(context.Background(), tenantctx.Scope{TenantID: 5, UserID: 9})
}

func TestRecordFillsActorAndTenantFromScope(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, nil)

	err := r.Record(scopedContext(), "EDIT", "matter", "12", model.AuditResultSuccess, map[string]any{"field": "status"})
	require.NoError(t, err)
	require.Len(t, sink.entries, 1)

	entry := sink.entries[0]
	assert.Equal(t, uint(5), entry.TenantID)
	assert.Equal(t, uint(9), entry.ActorID)
	assert.Equal(t, "EDIT", entry.Action)
	assert.Equal(t, "matter", entry.EntityType)
	assert.Equal(t, "12", entry.EntityID)
	assert.JSONEq(t, `{"field":"status"}`, entry.Detail)
}

func TestRecordDenialEntry(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, nil)

	err := r.Record(scopedContext(), "DELETE", "matter", "12", model.AuditResultDenied, nil)
	require.NoError(t, err)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, model.AuditResultDenied, sink.entries[0].Result)
	assert.Empty(t, sink.entries[0].Detail)
}

func TestRecordSurfacesSinkFailure(t *testing.T) {
	sink := &memorySink{fail: errors.New("disk full")}
	r := NewRecorder(sink, nil)

	err := r.Record(scopedContext(), "CREATE", "expense", "3", model.AuditResultSuccess, nil)
	assert.Error(t, err, "a dropped entry for a mutation must be reported, not swallowed")
}

func TestWithSinkSwapsSinkOnly(t *testing.T) {
	first := &memorySink{}
	second := &memorySink{}
	r := NewRecorder(first, nil)

	require.NoError(t, r.WithSink(second).Record(scopedContext(), "VIEW", "audit", "", model.AuditResultSuccess, nil))
	assert.Empty(t, first.entries)
	assert.Len(t, second.entries, 1)
}
