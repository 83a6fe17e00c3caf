package view

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofertalabs/waboard/internal/domain"
	"github.com/ofertalabs/waboard/internal/hub"
)

type fakeGroupAPI struct {
	mu      sync.Mutex
	calls   []string
	updated func(hub.Payload)
	created func(hub.Payload)
}

func (f *fakeGroupAPI) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeGroupAPI) JoinConversation(id string)  { f.record("join:" + id) }
func (f *fakeGroupAPI) LeaveConversation(id string) { f.record("leave:" + id) }
func (f *fakeGroupAPI) JoinPhone(phone string)      { f.record("joinPhone:" + phone) }
func (f *fakeGroupAPI) LeavePhone(phone string)     { f.record("leavePhone:" + phone) }

func (f *fakeGroupAPI) OnConversationUpdated(h func(hub.Payload)) func() {
	f.updated = h
	return func() { f.updated = nil }
}

func (f *fakeGroupAPI) OnConversationCreated(h func(hub.Payload)) func() {
	f.created = h
	return func() { f.created = nil }
}

func (f *fakeGroupAPI) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func staticSnapshot(rows []domain.ConversationRow) SnapshotFunc {
	return func(context.Context) ([]domain.ConversationRow, error) {
		return rows, nil
	}
}

var baseRows = []domain.ConversationRow{
	{ConversationID: 1, State: "read", InitiatedBy: "SYSTEM", MessageID: 10, Content: "oferta", CreatedAt: "2026-08-01T10:00:00Z"},
	{ConversationID: 1, State: "delivered", InitiatedBy: "CLIENT", MessageID: 11, Content: "quero", CreatedAt: "2026-08-01T10:05:00Z"},
	{ConversationID: 2, State: "sent", InitiatedBy: "SYSTEM", MessageID: 12, Content: "outra oferta", CreatedAt: "2026-08-01T09:00:00Z"},
}

func TestAssemblerStartJoinsAndLoads(t *testing.T) {
	api := &fakeGroupAPI{}
	asm := NewAssembler("5511988887777", api, staticSnapshot(baseRows), nil)

	asm.Start(context.Background())

	assert.Len(t, asm.Rows(), 3)
	calls := api.snapshot()
	assert.Contains(t, calls, "joinPhone:5511988887777")
	assert.Contains(t, calls, "join:1")
	assert.Contains(t, calls, "join:2")
}

func TestAssemblerSnapshotFailureKeepsPriorState(t *testing.T) {
	api := &fakeGroupAPI{}
	asm := NewAssembler("5511988887777", api,
		func(context.Context) ([]domain.ConversationRow, error) {
			return nil, errors.New("backend down")
		}, nil)

	asm.Start(context.Background())
	assert.Empty(t, asm.Rows())
}

func TestAssemblerIdenticalSnapshotSkipped(t *testing.T) {
	api := &fakeGroupAPI{}
	changes := 0
	asm := NewAssembler("x", api, staticSnapshot(baseRows), func([]domain.ConversationRow) { changes++ })

	asm.Start(context.Background())
	require.Equal(t, 1, changes)

	asm.ApplySnapshot(baseRows)
	assert.Equal(t, 1, changes)
}

func TestAssemblerEmptySnapshotNeverClobbersPopulatedView(t *testing.T) {
	api := &fakeGroupAPI{}
	asm := NewAssembler("x", api, staticSnapshot(baseRows), nil)
	asm.Start(context.Background())

	asm.ApplySnapshot(nil)
	assert.Len(t, asm.Rows(), 3)

	// but an empty snapshot into an empty view is a no-op that stays valid
	empty := NewAssembler("x", &fakeGroupAPI{}, staticSnapshot(nil), nil)
	empty.Start(context.Background())
	assert.Empty(t, empty.Rows())
	empty.ApplySnapshot(baseRows)
	assert.Len(t, empty.Rows(), 3)
}

func TestAssemblerUpdatedPatchesStateInPlace(t *testing.T) {
	api := &fakeGroupAPI{}
	asm := NewAssembler("x", api, staticSnapshot(baseRows), nil)
	asm.Start(context.Background())

	api.updated(hub.Payload{"id": float64(1), "state": "read"})

	rows := asm.Rows()
	assert.Equal(t, "read", rows[0].State)
	assert.Equal(t, "read", rows[1].State)
	assert.Equal(t, "sent", rows[2].State)
	// ordering untouched
	assert.Equal(t, int64(10), rows[0].MessageID)
}

func TestAssemblerUpdatedUnknownConversationIgnored(t *testing.T) {
	api := &fakeGroupAPI{}
	changes := 0
	asm := NewAssembler("x", api, staticSnapshot(baseRows), func([]domain.ConversationRow) { changes++ })
	asm.Start(context.Background())
	before := changes

	api.updated(hub.Payload{"id": float64(999), "state": "read"})
	assert.Equal(t, before, changes)
}

func TestAssemblerCreatedAppendsAndJoins(t *testing.T) {
	api := &fakeGroupAPI{}
	asm := NewAssembler("5511988887777", api, staticSnapshot(baseRows), nil)
	asm.Start(context.Background())

	api.created(hub.Payload{
		"id":        float64(3),
		"context":   "nova conversa",
		"createdAt": "2026-08-01T11:00:00Z",
	})

	rows := asm.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, int64(3), rows[3].ConversationID)
	assert.Contains(t, api.snapshot(), "join:3")
}

func TestAssemblerCreatedDeduplicates(t *testing.T) {
	api := &fakeGroupAPI{}
	asm := NewAssembler("x", api, staticSnapshot(baseRows), nil)
	asm.Start(context.Background())

	payload := hub.Payload{
		"id":        float64(3),
		"context":   "nova conversa",
		"createdAt": "2026-08-01T11:00:00Z",
	}
	api.created(payload)
	api.created(payload)

	assert.Len(t, asm.Rows(), 4)
}

func TestAssemblerCreatedForeignPhoneDropped(t *testing.T) {
	api := &fakeGroupAPI{}
	asm := NewAssembler("5511988887777", api, staticSnapshot(baseRows), nil)
	asm.Start(context.Background())

	api.created(hub.Payload{
		"id":        float64(3),
		"from":      "5511900001111",
		"context":   "conversa de outro numero",
		"createdAt": "2026-08-01T11:00:00Z",
	})
	assert.Len(t, asm.Rows(), 3)

	// formatting differences do not cause a false drop
	api.created(hub.Payload{
		"id":        float64(4),
		"from":      "+55 (11) 98888-7777",
		"context":   "mesmo numero formatado",
		"createdAt": "2026-08-01T11:05:00Z",
	})
	assert.Len(t, asm.Rows(), 4)
}

func TestAssemblerSnapshotShrinkLeavesVanishedGroups(t *testing.T) {
	api := &fakeGroupAPI{}
	asm := NewAssembler("x", api, staticSnapshot(baseRows), nil)
	asm.Start(context.Background())

	asm.ApplySnapshot([]domain.ConversationRow{baseRows[0], baseRows[1]})

	assert.Contains(t, api.snapshot(), "leave:2")
}

func TestAssemblerCloseTearsDown(t *testing.T) {
	api := &fakeGroupAPI{}
	asm := NewAssembler("5511988887777", api, staticSnapshot(baseRows), nil)
	asm.Start(context.Background())

	asm.Close()

	calls := api.snapshot()
	assert.Contains(t, calls, "leave:1")
	assert.Contains(t, calls, "leave:2")
	assert.Contains(t, calls, "leavePhone:5511988887777")
	assert.Nil(t, api.updated)
	assert.Nil(t, api.created)

	// snapshots after close are ignored
	asm.ApplySnapshot([]domain.ConversationRow{baseRows[0]})
	assert.Len(t, asm.Rows(), 3)
}

func TestGroupRowsOrdering(t *testing.T) {
	rows := []domain.ConversationRow{
		{ConversationID: 2, MessageID: 12, CreatedAt: "2026-08-01T09:00:00Z"},
		{ConversationID: 1, MessageID: 11, CreatedAt: "2026-08-01T10:05:00Z"},
		{ConversationID: 1, MessageID: 10, CreatedAt: "2026-08-01T10:00:00Z"},
	}

	groups := GroupRows(rows)
	require.Len(t, groups, 2)

	// bucket 2 finishes earlier, so it comes first
	assert.Equal(t, int64(2), groups[0].ID)
	assert.Equal(t, int64(1), groups[1].ID)

	// items within a bucket are ascending by timestamp
	assert.Equal(t, int64(10), groups[1].Items[0].MessageID)
	assert.Equal(t, int64(11), groups[1].Items[1].MessageID)
}

func TestGroupRowsIdempotent(t *testing.T) {
	first := GroupRows(baseRows)
	second := GroupRows(baseRows)
	assert.Equal(t, first, second)
}

func TestGroupRowsEqualTimestampsTieBreakStable(t *testing.T) {
	rows := []domain.ConversationRow{
		{ConversationID: 5, MessageID: 2, CreatedAt: "2026-08-01T10:00:00Z"},
		{ConversationID: 3, MessageID: 1, CreatedAt: "2026-08-01T10:00:00Z"},
	}
	groups := GroupRows(rows)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(3), groups[0].ID)
	assert.Equal(t, int64(5), groups[1].ID)
}
