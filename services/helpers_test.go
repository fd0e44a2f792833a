package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/codechannels/config"
	"github.com/cppla/codechannels/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.Open(config.AppConfig{DBDriver: "sqlite", DatabaseURI: ":memory:"}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db, models.All()...))
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createChannel(t *testing.T, db *gorm.DB, name string, owner *models.User) *models.Channel {
	t.Helper()
	c := &models.Channel{Name: name}
	if owner != nil {
		c.UserID = &owner.ID
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func createMessage(t *testing.T, db *gorm.DB, channel *models.Channel, author *models.User, title, content string, tags ...string) *models.Message {
	t.Helper()
	m := &models.Message{Title: title, Content: content, ChannelID: channel.ID, UserID: &author.ID, Tags: tags}
	require.NoError(t, db.Create(m).Error)
	return m
}

func createReply(t *testing.T, db *gorm.DB, msg *models.Message, author *models.User, parent *models.Reply, content string, at time.Time) *models.Reply {
	t.Helper()
	r := &models.Reply{Content: content, MessageID: msg.ID, UserID: &author.ID, CreatedAt: at}
	if parent != nil {
		r.ParentReplyID = &parent.ID
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

func rate(t *testing.T, db *gorm.DB, voter *models.User, targetType models.TargetType, targetID uint, value int) {
	t.Helper()
	require.NoError(t, db.Create(&models.Rating{UserID: &voter.ID, TargetType: targetType, TargetID: targetID, Value: value}).Error)
}

func ptr[T any](v T) *T { return &v }
