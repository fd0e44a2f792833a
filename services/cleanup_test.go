package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/codechannels/models"
)

func count(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	tx := db.Model(model)
	if query != "" {
		tx = tx.Where(query, args...)
	}
	require.NoError(t, tx.Count(&n).Error)
	return n
}

func TestDeleteReplyRemovesSubtree(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	ch := createChannel(t, db, "golang", alice)
	msg := createMessage(t, db, ch, alice, "Question", "body")
	r1 := createReply(t, db, msg, alice, nil, "root", t0)
	r2 := createReply(t, db, msg, alice, r1, "child", t0.Add(time.Second))
	r3 := createReply(t, db, msg, alice, r2, "grandchild", t0.Add(2*time.Second))
	keep := createReply(t, db, msg, alice, nil, "sibling", t0.Add(3*time.Second))
	rate(t, db, alice, models.TargetReply, r1.ID, 1)
	rate(t, db, alice, models.TargetReply, r3.ID, -1)
	rate(t, db, alice, models.TargetReply, keep.ID, 1)
	rate(t, db, alice, models.TargetMessage, msg.ID, 1)

	messageID, err := DeleteReply(context.Background(), db, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, messageID)

	assert.EqualValues(t, 0, count(t, db, &models.Reply{}, "id IN ?", []uint{r1.ID, r2.ID, r3.ID}))
	assert.EqualValues(t, 1, count(t, db, &models.Reply{}, ""))
	assert.EqualValues(t, 2, count(t, db, &models.Rating{}, ""))
	assert.EqualValues(t, 1, count(t, db, &models.Rating{}, "target_type = ? AND target_id = ?", models.TargetReply, keep.ID))

	_, err = DeleteReply(context.Background(), db, r1.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMessageRemovesRepliesAndRatings(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	ch := createChannel(t, db, "golang", alice)
	msg := createMessage(t, db, ch, alice, "Doomed", "body")
	other := createMessage(t, db, ch, alice, "Survivor", "body")
	r := createReply(t, db, msg, alice, nil, "reply", t0)
	createReply(t, db, msg, alice, r, "nested", t0.Add(time.Second))
	otherReply := createReply(t, db, other, alice, nil, "stays", t0)
	rate(t, db, alice, models.TargetMessage, msg.ID, 1)
	rate(t, db, alice, models.TargetReply, r.ID, 1)
	rate(t, db, alice, models.TargetMessage, other.ID, -1)
	rate(t, db, alice, models.TargetReply, otherReply.ID, 1)

	require.NoError(t, DeleteMessage(context.Background(), db, msg.ID))

	assert.EqualValues(t, 1, count(t, db, &models.Message{}, ""))
	assert.EqualValues(t, 1, count(t, db, &models.Reply{}, ""))
	assert.EqualValues(t, 2, count(t, db, &models.Rating{}, ""))

	assert.ErrorIs(t, DeleteMessage(context.Background(), db, msg.ID), ErrNotFound)
}

func TestDeleteChannelCascades(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	ch := createChannel(t, db, "golang", alice)
	keepCh := createChannel(t, db, "rust", alice)
	m1 := createMessage(t, db, ch, alice, "one", "x")
	m2 := createMessage(t, db, ch, alice, "two", "x")
	kept := createMessage(t, db, keepCh, alice, "kept", "x")
	r := createReply(t, db, m1, alice, nil, "reply", t0)
	rate(t, db, alice, models.TargetReply, r.ID, 1)
	rate(t, db, alice, models.TargetMessage, m2.ID, 1)
	rate(t, db, alice, models.TargetMessage, kept.ID, 1)

	deleted, err := DeleteChannel(context.Background(), db, ch.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{m1.ID, m2.ID}, deleted)

	assert.EqualValues(t, 1, count(t, db, &models.Channel{}, ""))
	assert.EqualValues(t, 1, count(t, db, &models.Message{}, ""))
	assert.EqualValues(t, 0, count(t, db, &models.Reply{}, ""))
	assert.EqualValues(t, 1, count(t, db, &models.Rating{}, ""))

	_, err = DeleteChannel(context.Background(), db, ch.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEmptyChannel(t *testing.T) {
	db := newTestDB(t)
	ch := createChannel(t, db, "empty", nil)
	deleted, err := DeleteChannel(context.Background(), db, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, deleted)
	assert.EqualValues(t, 0, count(t, db, &models.Channel{}, ""))
}
