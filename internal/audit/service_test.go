package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	entries   []Entry
	insertErr error
}

func (s *stubRepo) Insert(_ context.Context, e Entry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubRepo) Query(_ context.Context, f Filter) ([]Entry, bool, error) {
	return s.entries, false, nil
}

func TestRecordFillsDefaults(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, slog.New(slog.DiscardHandler))

	svc.Record(context.Background(), Entry{
		Action:     ActionGrant,
		EntityType: EntityUserPermission,
		EntityID:   uuid.NewString(),
		Success:    true,
	})

	require.Len(t, repo.entries, 1)
	got := repo.entries[0]
	require.NotEqual(t, uuid.Nil, got.ID)
	require.False(t, got.At.IsZero())
	require.Equal(t, time.UTC, got.At.Location())
}

func TestRecordSwallowsInsertFailure(t *testing.T) {
	repo := &stubRepo{insertErr: errors.New("db down")}
	svc := NewService(repo, slog.New(slog.DiscardHandler))

	// must not panic or surface the error
	svc.Record(context.Background(), Entry{Action: ActionRevoke, EntityType: EntityUserPermission})
	require.Empty(t, repo.entries)
}

func TestDecodeChanges(t *testing.T) {
	actor := uuid.New()
	expiry := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	payload, err := json.Marshal(GrantChange{PermissionCode: "REPORT_VIEW", ExpiresAt: &expiry, Reason: "audit season"})
	require.NoError(t, err)

	entry := Entry{
		ActorID:    &actor,
		Action:     ActionGrantTemporary,
		EntityType: EntityUserPermission,
		Changes:    json.RawMessage(payload),
	}
	decoded, err := DecodeChanges(entry)
	require.NoError(t, err)
	change := decoded.(*GrantChange)
	require.Equal(t, "REPORT_VIEW", change.PermissionCode)
	require.Equal(t, expiry, change.ExpiresAt.UTC())
	require.Equal(t, "audit season", change.Reason)
}

func TestDecodeChangesPerAction(t *testing.T) {
	cases := []struct {
		action  Action
		changes any
		want    any
	}{
		{ActionRevoke, RevokeChange{PermissionCode: "X"}, &RevokeChange{}},
		{ActionElevate, ElevateChange{PreviousType: "USER", NewType: "ADMIN"}, &ElevateChange{}},
		{ActionHierarchyAdd, HierarchyChange{ParentRoleID: uuid.New()}, &HierarchyChange{}},
		{ActionCleanupExpired, CleanupChange{CleanedCount: 3}, &CleanupChange{}},
		{ActionBulkGrant, BulkChange{SuccessCount: 2, FailedCount: 1}, &BulkChange{}},
	}
	for _, tc := range cases {
		decoded, err := DecodeChanges(Entry{Action: tc.action, Changes: tc.changes})
		require.NoError(t, err, "action %s", tc.action)
		require.IsType(t, tc.want, decoded, "action %s", tc.action)
	}
}

func TestDecodeChangesUnknownAction(t *testing.T) {
	_, err := DecodeChanges(Entry{Action: Action("MYSTERY"), Changes: json.RawMessage(`{}`)})
	require.Error(t, err)

	decoded, err := DecodeChanges(Entry{Action: ActionGrant})
	require.NoError(t, err)
	require.Nil(t, decoded)
}
