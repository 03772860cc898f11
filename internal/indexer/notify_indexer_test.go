package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/models"
)

func TestGetNotifyTypeName(t *testing.T) {
	tests := []struct {
		name     string
		typeID   int16
		expected string
	}{
		{"new_community", models.NotifyTypeNewCommunity, "new_community"},
		{"error", models.NotifyTypeError, "error"},
		{"vote", models.NotifyTypeVote, "vote"},
		{"unknown", 999, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getNotifyTypeName(tt.typeID)
			if result != tt.expected {
				t.Errorf("getNotifyTypeName(%d) = %v, want %v", tt.typeID, result, tt.expected)
			}
		})
	}
}

func TestNullInt64(t *testing.T) {
	tests := []struct {
		name  string
		ptr   *int64
		valid bool
		value int64
	}{
		{"nil pointer", nil, false, 0},
		{"valid pointer", int64Ptr(42), true, 42},
		{"zero value", int64Ptr(0), true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nullInt64(tt.ptr)
			if got.Valid != tt.valid || got.Int64 != tt.value {
				t.Errorf("nullInt64() = %+v, want valid=%v value=%v", got, tt.valid, tt.value)
			}
		})
	}
}

func TestNotifyIndexerWrite(t *testing.T) {
	store := &fakeNotificationStore{}
	n := NewNotifyIndexer(store, zap.NewNop())
	when := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	payload := "not authorized"

	err := n.Write(context.Background(), models.NotifyTypeError, when, nil, int64Ptr(7), nil, int64Ptr(99), &payload, nil)
	require.NoError(t, err)
	require.Len(t, store.created, 1)

	got := store.created[0]
	assert.Equal(t, models.NotifyTypeError, got.Type)
	assert.Equal(t, DefaultScore, got.Score)
	assert.Equal(t, when, got.CreatedAt)
	assert.False(t, got.SrcID.Valid)
	assert.Equal(t, int64(7), got.DstID.Int64)
	assert.Equal(t, int64(99), got.PostID.Int64)
	assert.Equal(t, "not authorized", got.Payload.String)
}

func TestNotifyIndexerStoreFailure(t *testing.T) {
	store := &fakeNotificationStore{err: errors.New("disk full")}
	n := NewNotifyIndexer(store, zap.NewNop())

	err := n.Write(context.Background(), models.NotifyTypeVote, time.Now(), nil, nil, nil, nil, nil, nil)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, store.err)
}

func int64Ptr(v int64) *int64 {
	return &v
}
