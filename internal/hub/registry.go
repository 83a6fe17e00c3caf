package hub

import (
	"sync"

	"go.uber.org/zap"
)

// Hub remote method names. Join/leave calls carry the group key as their
// single argument.
const (
	MethodJoinConversation  = "JoinConversationGroup"
	MethodLeaveConversation = "LeaveConversationGroup"
	MethodJoinPhone         = "JoinPhoneGroup"
	MethodLeavePhone        = "LeavePhoneGroup"
	MethodPing              = "Ping"
)

// GroupRegistry converts "N consumers want group G" into exactly one remote
// subscription per group. Conversation and phone keys live in separate
// namespaces; a remote join fires only on the 0->1 transition and a remote
// leave only on 1->0.
type GroupRegistry struct {
	mu          sync.Mutex
	convCounts  map[string]int
	phoneCounts map[string]int
	invoke      func(method string, args ...interface{})
}

func NewGroupRegistry(invoke func(method string, args ...interface{})) *GroupRegistry {
	return &GroupRegistry{
		convCounts:  make(map[string]int),
		phoneCounts: make(map[string]int),
		invoke:      invoke,
	}
}

func (r *GroupRegistry) join(counts map[string]int, key, method string) {
	r.mu.Lock()
	prev := counts[key]
	counts[key] = prev + 1
	r.mu.Unlock()
	if prev == 0 {
		r.invoke(method, key)
	}
}

func (r *GroupRegistry) leave(counts map[string]int, key, method string) {
	r.mu.Lock()
	prev := counts[key]
	if prev == 0 {
		// unbalanced leave, nothing to release
		r.mu.Unlock()
		zap.L().Warn("hub: leave without matching join", zap.String("group", key))
		return
	}
	counts[key] = prev - 1
	last := prev == 1
	r.mu.Unlock()
	if last {
		r.invoke(method, key)
	}
}

func (r *GroupRegistry) JoinConversation(id string) {
	r.join(r.convCounts, id, MethodJoinConversation)
}

func (r *GroupRegistry) LeaveConversation(id string) {
	r.leave(r.convCounts, id, MethodLeaveConversation)
}

func (r *GroupRegistry) JoinPhone(phone string) {
	r.join(r.phoneCounts, phone, MethodJoinPhone)
}

func (r *GroupRegistry) LeavePhone(phone string) {
	r.leave(r.phoneCounts, phone, MethodLeavePhone)
}

// ActiveGroups returns every key holding a positive reference count. The
// manager replays these after a reconnect, so the result reflects current
// counts, never join history.
func (r *GroupRegistry) ActiveGroups() (convs, phones []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, n := range r.convCounts {
		if n > 0 {
			convs = append(convs, k)
		}
	}
	for k, n := range r.phoneCounts {
		if n > 0 {
			phones = append(phones, k)
		}
	}
	return convs, phones
}

// Shutdown issues one best-effort remote leave per held group and zeroes all
// counts. The hub expires idle subscriptions, so failures are not retried.
func (r *GroupRegistry) Shutdown() {
	convs, phones := r.ActiveGroups()
	for _, id := range convs {
		r.invoke(MethodLeaveConversation, id)
	}
	for _, phone := range phones {
		r.invoke(MethodLeavePhone, phone)
	}
	r.mu.Lock()
	r.convCounts = make(map[string]int)
	r.phoneCounts = make(map[string]int)
	r.mu.Unlock()
}
