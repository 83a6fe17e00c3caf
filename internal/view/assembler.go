package view

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ofertalabs/waboard/internal/domain"
	"github.com/ofertalabs/waboard/internal/hub"
)

// GroupAPI is the hub facade the assembler consumes; *hub.Manager satisfies
// it, tests use fakes.
type GroupAPI interface {
	JoinConversation(id string)
	LeaveConversation(id string)
	JoinPhone(phone string)
	LeavePhone(phone string)
	OnConversationUpdated(func(hub.Payload)) func()
	OnConversationCreated(func(hub.Payload)) func()
}

// SnapshotFunc fetches the REST baseline for the viewed phone.
type SnapshotFunc func(ctx context.Context) ([]domain.ConversationRow, error)

// Assembler reconciles the REST snapshot with live hub deltas into the single
// ordered, deduplicated row list a chat view renders. One assembler serves one
// phone number from mount to teardown.
type Assembler struct {
	phone    string
	api      GroupAPI
	snapshot SnapshotFunc
	onChange func(rows []domain.ConversationRow)

	mu      sync.Mutex
	rows    []domain.ConversationRow
	lastSig Signature
	joined  map[int64]bool
	closed  bool

	offUpdated func()
	offCreated func()
}

func NewAssembler(phone string, api GroupAPI, snapshot SnapshotFunc, onChange func([]domain.ConversationRow)) *Assembler {
	return &Assembler{
		phone:    phone,
		api:      api,
		snapshot: snapshot,
		onChange: onChange,
		joined:   map[int64]bool{},
	}
}

// Start joins the phone group, subscribes to live events and loads the
// snapshot baseline. A failing snapshot fetch is logged and swallowed; the
// live stream becomes the authority.
func (a *Assembler) Start(ctx context.Context) {
	a.api.JoinPhone(a.phone)
	a.offUpdated = a.api.OnConversationUpdated(a.applyUpdated)
	a.offCreated = a.api.OnConversationCreated(a.applyCreated)

	rows, err := a.snapshot(ctx)
	if err != nil {
		zap.L().Warn("view: snapshot fetch failed, keeping prior state",
			zap.String("phone", a.phone), zap.Error(err))
		return
	}
	a.ApplySnapshot(rows)
}

// ApplySnapshot replaces the row set when the snapshot differs from what is
// already rendered. An empty snapshot is ignored unless the view itself is
// empty, so a failing or lagging fetch never clobbers a populated view.
func (a *Assembler) ApplySnapshot(rows []domain.ConversationRow) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	sig := ComputeSignature(rows)
	if sig == a.lastSig {
		a.mu.Unlock()
		return
	}
	if len(rows) == 0 && len(a.rows) > 0 {
		a.mu.Unlock()
		return
	}
	a.rows = append([]domain.ConversationRow(nil), rows...)
	a.lastSig = sig
	a.syncJoinsLocked()
	snapshot := a.snapshotRowsLocked()
	a.mu.Unlock()
	a.notify(snapshot)
}

// applyUpdated patches the state of every displayed row of the conversation
// in place; ordering is untouched.
func (a *Assembler) applyUpdated(p hub.Payload) {
	convID := cast.ToInt64(p["id"])
	state := cast.ToString(p["state"])
	if convID == 0 {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	changed := false
	for i := range a.rows {
		if a.rows[i].ConversationID == convID && state != "" && a.rows[i].State != state {
			a.rows[i].State = state
			changed = true
		}
	}
	var snapshot []domain.ConversationRow
	if changed {
		snapshot = a.snapshotRowsLocked()
	}
	a.mu.Unlock()
	if changed {
		a.notify(snapshot)
	}
}

// applyCreated appends a normalized new row. Events carrying a sender
// identity that is not the viewed phone are dropped, so one dispatcher can
// serve several open views without leakage. Dedup is exact on
// (conversation, timestamp, content).
func (a *Assembler) applyCreated(p hub.Payload) {
	ev, ok := NormalizeCreated(p, time.Now())
	if !ok {
		return
	}
	if ev.From != "" && !SamePhone(ev.From, a.phone) {
		zap.L().Debug("view: dropped created event for foreign phone",
			zap.String("phone", a.phone), zap.String("from", ev.From))
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	for _, row := range a.rows {
		if row.ConversationID == ev.ID && row.CreatedAt == ev.CreatedAt && row.Content == ev.Content {
			a.mu.Unlock()
			return
		}
	}
	a.rows = append(a.rows, domain.ConversationRow{
		ConversationID: ev.ID,
		State:          ev.State,
		InitiatedBy:    ev.InitiatedBy,
		Content:        ev.Content,
		CreatedAt:      ev.CreatedAt,
	})
	a.lastSig = ComputeSignature(a.rows)
	a.syncJoinsLocked()
	snapshot := a.snapshotRowsLocked()
	a.mu.Unlock()
	a.notify(snapshot)
}

// Rows returns a copy of the current row set.
func (a *Assembler) Rows() []domain.ConversationRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotRowsLocked()
}

// Groups buckets the rows per conversation, each bucket ascending by
// timestamp and the buckets ordered by their latest message. Recomputing from
// the same rows always yields the same order.
func (a *Assembler) Groups() []domain.ConversationGroup {
	return GroupRows(a.Rows())
}

// Close tears the view down: handlers are unregistered before the groups are
// left, so no event is applied after teardown.
func (a *Assembler) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	joined := make([]int64, 0, len(a.joined))
	for id := range a.joined {
		joined = append(joined, id)
	}
	a.joined = map[int64]bool{}
	a.mu.Unlock()

	if a.offUpdated != nil {
		a.offUpdated()
	}
	if a.offCreated != nil {
		a.offCreated()
	}
	for _, id := range joined {
		a.api.LeaveConversation(strconv.FormatInt(id, 10))
	}
	a.api.LeavePhone(a.phone)
}

// syncJoinsLocked diffs the visible conversation ids against the held joins,
// joining new ids and leaving vanished ones so the registry counts stay exact.
func (a *Assembler) syncJoinsLocked() {
	visible := map[int64]bool{}
	for _, row := range a.rows {
		visible[row.ConversationID] = true
	}
	for id := range visible {
		if !a.joined[id] {
			a.joined[id] = true
			a.api.JoinConversation(strconv.FormatInt(id, 10))
		}
	}
	for id := range a.joined {
		if !visible[id] {
			delete(a.joined, id)
			a.api.LeaveConversation(strconv.FormatInt(id, 10))
		}
	}
}

func (a *Assembler) snapshotRowsLocked() []domain.ConversationRow {
	return append([]domain.ConversationRow(nil), a.rows...)
}

func (a *Assembler) notify(rows []domain.ConversationRow) {
	if a.onChange != nil {
		a.onChange(rows)
	}
}

// GroupRows implements the chat-log ordering: rows grouped by conversation,
// each group ascending by timestamp, groups ascending by the timestamp of
// their latest row. Ties break on conversation id to keep the order stable.
func GroupRows(rows []domain.ConversationRow) []domain.ConversationGroup {
	buckets := map[int64][]domain.ConversationRow{}
	order := make([]int64, 0)
	for _, row := range rows {
		if _, seen := buckets[row.ConversationID]; !seen {
			order = append(order, row.ConversationID)
		}
		buckets[row.ConversationID] = append(buckets[row.ConversationID], row)
	}

	groups := make([]domain.ConversationGroup, 0, len(order))
	for _, id := range order {
		items := buckets[id]
		sort.SliceStable(items, func(i, j int) bool {
			ti, tj := parseWhen(items[i].CreatedAt), parseWhen(items[j].CreatedAt)
			if ti.Equal(tj) {
				return items[i].MessageID < items[j].MessageID
			}
			return ti.Before(tj)
		})
		groups = append(groups, domain.ConversationGroup{ID: id, Items: items})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		ti := latestStamp(groups[i].Items)
		tj := latestStamp(groups[j].Items)
		if ti.Equal(tj) {
			return groups[i].ID < groups[j].ID
		}
		return ti.Before(tj)
	})
	return groups
}

func latestStamp(items []domain.ConversationRow) time.Time {
	if len(items) == 0 {
		return time.Time{}
	}
	return parseWhen(items[len(items)-1].CreatedAt)
}

func parseWhen(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
