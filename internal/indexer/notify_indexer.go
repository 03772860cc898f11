package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/models"
)

// DefaultScore is the default notification score
const DefaultScore int16 = 35

// NotifyIndexer handles notification creation
type NotifyIndexer struct {
	store  NotificationStore
	logger *zap.Logger
}

// NewNotifyIndexer creates a new notification indexer
func NewNotifyIndexer(store NotificationStore, logger *zap.Logger) *NotifyIndexer {
	return &NotifyIndexer{store: store, logger: logger}
}

// Write creates a new notification
func (n *NotifyIndexer) Write(ctx context.Context, typeID int16, when time.Time, srcID, dstID, communityID, postID *int64, payload *string, score *int16) error {
	notif := &models.Notification{
		Type:        typeID,
		CreatedAt:   when,
		Score:       DefaultScore,
		SrcID:       nullInt64(srcID),
		DstID:       nullInt64(dstID),
		CommunityID: nullInt64(communityID),
		PostID:      nullInt64(postID),
	}
	if score != nil {
		notif.Score = *score
	}
	if payload != nil {
		notif.Payload = sql.NullString{String: *payload, Valid: true}
	}

	if !quietTypes[typeID] {
		n.logger.Info("[NOTIFY]",
			zap.String("type", getNotifyTypeName(typeID)),
			zap.Int64("src_id", getInt64(srcID)),
			zap.Int64("dst_id", getInt64(dstID)),
			zap.Int64("post_id", getInt64(postID)),
			zap.Int64("community_id", getInt64(communityID)),
			zap.String("payload", getString(payload)),
			zap.Int16("score", notif.Score))
	}

	if err := n.store.Create(ctx, notif); err != nil {
		return storeErr(fmt.Sprintf("write %s notification", getNotifyTypeName(typeID)), err)
	}
	return nil
}

// high-volume types that are not logged
var quietTypes = map[int16]bool{
	models.NotifyTypeReply:        true,
	models.NotifyTypeReplyComment: true,
	models.NotifyTypeReblog:       true,
	models.NotifyTypeFollow:       true,
	models.NotifyTypeMention:      true,
	models.NotifyTypeVote:         true,
}

var notifyTypeNames = map[int16]string{
	models.NotifyTypeNewCommunity: "new_community",
	models.NotifyTypeSetRole:      "set_role",
	models.NotifyTypeSetProps:     "set_props",
	models.NotifyTypeSetLabel:     "set_label",
	models.NotifyTypeMutePost:     "mute_post",
	models.NotifyTypeUnmutePost:   "unmute_post",
	models.NotifyTypePinPost:      "pin_post",
	models.NotifyTypeUnpinPost:    "unpin_post",
	models.NotifyTypeFlagPost:     "flag_post",
	models.NotifyTypeError:        "error",
	models.NotifyTypeSubscribe:    "subscribe",
	models.NotifyTypeReply:        "reply",
	models.NotifyTypeReplyComment: "reply_comment",
	models.NotifyTypeReblog:       "reblog",
	models.NotifyTypeFollow:       "follow",
	models.NotifyTypeMention:      "mention",
	models.NotifyTypeVote:         "vote",
}

func getNotifyTypeName(typeID int16) string {
	if name, ok := notifyTypeNames[typeID]; ok {
		return name
	}
	return "unknown"
}

func nullInt64(ptr *int64) sql.NullInt64 {
	if ptr == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ptr, Valid: true}
}

func getInt64(ptr *int64) int64 {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func getString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
