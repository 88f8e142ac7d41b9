package incidents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/document"
	"tenantdesk/core/rbac"
	"tenantdesk/core/store"
	"tenantdesk/core/tenancy"
)

var allStatuses = []string{StatusOpen, StatusInProgress, StatusCompleted, StatusEscalated}

func testMachine() *StateMachine {
	return NewStateMachine(tenancy.NewScope(rbac.MustPolicy(rbac.DefaultRoles())))
}

func baseIncident(status string) store.Incident {
	desc := "disk full"
	return store.Incident{
		ID:          store.NewID(),
		TenantID:    "t1",
		Title:       "db down",
		Description: &desc,
		Status:      status,
		Priority:    2,
		ReportedBy:  "u1",
		Data:        document.New().Set("host", document.String("db-1")),
		Version:     1,
	}
}

func ptr[T any](v T) *T { return &v }

func TestTransitionTable(t *testing.T) {
	m := testMachine()
	op := auth.Actor{ID: "op", Role: rbac.RoleOperator}
	accepted := map[[2]string]bool{
		{StatusOpen, StatusInProgress}:      true,
		{StatusInProgress, StatusCompleted}: true,
		{StatusInProgress, StatusEscalated}: true,
		{StatusEscalated, StatusCompleted}:  true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			cur := baseIncident(from)
			next, entries, err := m.ApplyUpdate(cur, Patch{Status: ptr(to)}, UpdateContext{Actor: op, Now: time.Now()})
			switch {
			case from == to:
				require.NoError(t, err, "%s->%s", from, to)
				assert.Empty(t, entries)
			case accepted[[2]string{from, to}]:
				require.NoError(t, err, "%s->%s", from, to)
				require.Len(t, entries, 1)
				assert.Equal(t, ActionStatusChanged, entries[0].Action)
				assert.Equal(t, "Status changed from "+from+" to "+to, entries[0].Description)
				assert.Equal(t, to, next.Status)
			default:
				assert.True(t, apperr.Is(err, apperr.KindInvalidTransition), "%s->%s", from, to)
			}
		}
	}
}

func TestUnknownStatusIsValidation(t *testing.T) {
	_, _, err := testMachine().ApplyUpdate(baseIncident(StatusOpen), Patch{Status: ptr("closed")}, UpdateContext{Now: time.Now()})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestResolvedAtOnlyWhenCompleted(t *testing.T) {
	m := testMachine()
	op := auth.Actor{ID: "op", Role: rbac.RoleOperator}
	inc := baseIncident(StatusOpen)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, to := range []string{StatusInProgress, StatusEscalated, StatusCompleted} {
		next, _, err := m.ApplyUpdate(inc, Patch{Status: ptr(to)}, UpdateContext{Actor: op, Now: now})
		require.NoError(t, err)
		if to == StatusCompleted {
			require.NotNil(t, next.ResolvedAt)
			assert.True(t, next.ResolvedAt.Equal(now))
		} else {
			assert.Nil(t, next.ResolvedAt)
		}
		inc = next
	}
	_, _, err := m.ApplyUpdate(inc, Patch{Status: ptr(StatusOpen)}, UpdateContext{Actor: op, Now: now})
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}

func TestApplyUpdateIsAtomic(t *testing.T) {
	m := testMachine()
	op := auth.Actor{ID: "op", Role: rbac.RoleOperator}
	cur := baseIncident(StatusOpen)
	snapshot := cur.Clone()
	patch := Patch{Status: ptr(StatusInProgress), Title: ptr("new title"), Priority: ptr(9)}
	_, entries, err := m.ApplyUpdate(cur, patch, UpdateContext{Actor: op, Now: time.Now()})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Nil(t, entries)
	assert.Equal(t, snapshot.Status, cur.Status)
	assert.Equal(t, snapshot.Title, cur.Title)
	assert.Equal(t, snapshot.Priority, cur.Priority)
}

func TestApplyUpdateDoesNotAliasData(t *testing.T) {
	m := testMachine()
	cur := baseIncident(StatusOpen)
	patchData := document.New().Set("host", document.String("db-2"))
	next, entries, err := m.ApplyUpdate(cur, Patch{Data: patchData}, UpdateContext{Now: time.Now()})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Details updated: data", entries[0].Description)
	patchData.Set("host", document.String("mutated"))
	host, _ := next.Data.Get("host")
	assert.Equal(t, document.String("db-2"), host)
	orig, _ := cur.Data.Get("host")
	assert.Equal(t, document.String("db-1"), orig)
}

func TestEntriesPerDistinctChange(t *testing.T) {
	m := testMachine()
	op := auth.Actor{ID: "op", Role: rbac.RoleOperator}
	assignee := store.NewID()
	cur := baseIncident(StatusOpen)
	patch := Patch{
		Status:      ptr(StatusInProgress),
		AssignedTo:  ptr(assignee),
		Priority:    ptr(4),
		Title:       ptr("db down again"),
		Description: ptr("disk full"),
	}
	now := time.Now()
	next, entries, err := m.ApplyUpdate(cur, patch, UpdateContext{Actor: op, Now: now, Names: map[string]string{assignee: "John Operator"}})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "Status changed from open to in_progress", entries[0].Description)
	assert.Equal(t, "Incident assigned to John Operator", entries[1].Description)
	assert.Equal(t, ActionAssigned, entries[1].Action)
	assert.Equal(t, "Priority changed from 2 to 4", entries[2].Description)
	assert.Equal(t, "Details updated: title", entries[3].Description)
	assert.Equal(t, assignee, *next.AssignedTo)
	assert.True(t, next.UpdatedAt.Equal(now.UTC()))

	from, _ := entries[2].Metadata.Get("from")
	assert.Equal(t, document.Number(2), from)

	other := store.NewID()
	_, entries, err = m.ApplyUpdate(next, Patch{AssignedTo: ptr(other)}, UpdateContext{Actor: op, Now: now, Names: map[string]string{assignee: "John Operator"}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Incident assigned from John Operator to "+other, entries[0].Description)
}

func TestClientCannotAssign(t *testing.T) {
	m := testMachine()
	client := auth.Actor{ID: store.NewID(), Role: rbac.RoleClient, TenantID: "t1"}
	_, entries, err := m.ApplyUpdate(baseIncident(StatusOpen), Patch{AssignedTo: ptr(client.ID)}, UpdateContext{Actor: client, Now: time.Now()})
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))
	assert.Nil(t, entries)
}

func TestTitleAndPriorityRules(t *testing.T) {
	m := testMachine()
	for _, p := range []int{0, 6, -1} {
		_, _, err := m.ApplyUpdate(baseIncident(StatusOpen), Patch{Priority: ptr(p)}, UpdateContext{Now: time.Now()})
		assert.True(t, apperr.Is(err, apperr.KindValidation), "priority %d", p)
	}
	_, _, err := m.ApplyUpdate(baseIncident(StatusOpen), Patch{Title: ptr("  ")}, UpdateContext{Now: time.Now()})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
