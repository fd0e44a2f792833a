package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/cppla/codechannels/models"
)

// SearchResult groups keyword matches per entity. Each list is ordered by id
// and holds at most the requested number of entries.
type SearchResult struct {
	Channels []models.Channel `json:"channels"`
	Messages []models.Message `json:"messages"`
	Replies  []models.Reply   `json:"replies"`
	Users    []models.User    `json:"users"`
}

// UserRanking is one row of the user leaderboards.
type UserRanking struct {
	ID            uint         `json:"id"`
	Username      string       `json:"username"`
	Avatar        string       `json:"avatar"`
	Level         models.Level `json:"level"`
	MessageCount  int64        `json:"messageCount"`
	ReplyCount    int64        `json:"replyCount"`
	TotalPosts    int64        `json:"totalPosts"`
	RatingCount   int64        `json:"ratingCount"`
	RatingSum     int64        `json:"-"`
	AverageRating float64      `json:"averageRating"`
}

// SearchService runs case-insensitive substring searches. Matching is done
// with LOWER(col) LIKE so the same SQL runs on MySQL, PostgreSQL and SQLite.
type SearchService struct {
	db               *gorm.DB
	anonymizedDomain string
}

// NewSearchService constructs the service. Users whose email ends with
// "@"+anonymizedDomain are treated as deleted.
func NewSearchService(db *gorm.DB, anonymizedDomain string) *SearchService {
	return &SearchService{db: db, anonymizedDomain: strings.ToLower(strings.TrimPrefix(anonymizedDomain, "@"))}
}

func likePattern(query string) string {
	return "%" + strings.ToLower(query) + "%"
}

// Search matches query against channels, messages, replies and users
// concurrently. Any failing query fails the whole search.
func (s *SearchService) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	pattern := likePattern(query)
	res := &SearchResult{
		Channels: []models.Channel{},
		Messages: []models.Message{},
		Replies:  []models.Reply{},
		Users:    []models.User{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Preload("Creator").
			Joins("LEFT JOIN users creator ON creator.id = channels.user_id").
			Where("LOWER(channels.name) LIKE ? OR LOWER(channels.description) LIKE ? OR (creator.anonymized_at IS NULL AND LOWER(creator.username) LIKE ?)",
				pattern, pattern, pattern).
			Order("channels.id ASC").Limit(limit).
			Find(&res.Channels).Error
		if err != nil {
			return fmt.Errorf("search channels: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Preload("Author").Preload("Channel").
			Where("LOWER(title) LIKE ? OR LOWER(content) LIKE ? OR LOWER(tags) LIKE ?", pattern, pattern, pattern).
			Order("id ASC").Limit(limit).
			Find(&res.Messages).Error
		if err != nil {
			return fmt.Errorf("search messages: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Preload("Author").Preload("Message.Channel").
			Where("LOWER(content) LIKE ?", pattern).
			Order("id ASC").Limit(limit).
			Find(&res.Replies).Error
		if err != nil {
			return fmt.Errorf("search replies: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		users, err := s.SearchUsers(gctx, query, limit)
		if err != nil {
			return err
		}
		res.Users = users
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// SearchUsers matches usernames, leaving out anonymized accounts.
func (s *SearchService) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	users := []models.User{}
	err := s.activeUsers(s.db.WithContext(ctx)).
		Where("LOWER(username) LIKE ?", likePattern(query)).
		Order("id ASC").Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

func (s *SearchService) activeUsers(tx *gorm.DB) *gorm.DB {
	return tx.Where("anonymized_at IS NULL AND LOWER(email) NOT LIKE ?", "%@"+s.anonymizedDomain)
}

// UsersWithMostPosts ranks active users by messages plus replies authored.
// Ties fall back to the message count, then to the user id.
func (s *SearchService) UsersWithMostPosts(ctx context.Context, limit int) ([]UserRanking, error) {
	rows := []UserRanking{}
	err := s.db.WithContext(ctx).Raw(`
SELECT * FROM (
	SELECT u.id, u.username, u.avatar, u.level,
		(SELECT COUNT(*) FROM messages m WHERE m.user_id = u.id) AS message_count,
		(SELECT COUNT(*) FROM replies r WHERE r.user_id = u.id) AS reply_count
	FROM users u
	WHERE u.anonymized_at IS NULL AND LOWER(u.email) NOT LIKE ?
) t
ORDER BY (t.message_count + t.reply_count) DESC, t.message_count DESC, t.id ASC
LIMIT ?`, "%@"+s.anonymizedDomain, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("rank users by posts: %w", err)
	}
	for i := range rows {
		rows[i].TotalPosts = rows[i].MessageCount + rows[i].ReplyCount
	}
	return rows, nil
}

// UsersWithHighestRatings ranks active users by the average rating received
// on their messages and replies. Users never rated are left out; ties fall
// back to the number of ratings, then to the user id.
func (s *SearchService) UsersWithHighestRatings(ctx context.Context, limit int) ([]UserRanking, error) {
	rows := []UserRanking{}
	err := s.db.WithContext(ctx).Raw(`
SELECT * FROM (
	SELECT u.id, u.username, u.avatar, u.level,
		COUNT(*) AS rating_count,
		SUM(rt.value) AS rating_sum
	FROM users u
	JOIN (
		SELECT m.user_id AS owner_id, r.value FROM ratings r
			JOIN messages m ON r.target_type = ? AND r.target_id = m.id
		UNION ALL
		SELECT p.user_id AS owner_id, r.value FROM ratings r
			JOIN replies p ON r.target_type = ? AND r.target_id = p.id
	) rt ON rt.owner_id = u.id
	WHERE u.anonymized_at IS NULL AND LOWER(u.email) NOT LIKE ?
	GROUP BY u.id, u.username, u.avatar, u.level
) t
ORDER BY t.rating_sum * 1.0 / t.rating_count DESC, t.rating_count DESC, t.id ASC
LIMIT ?`, models.TargetMessage, models.TargetReply, "%@"+s.anonymizedDomain, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("rank users by rating: %w", err)
	}
	for i := range rows {
		if rows[i].RatingCount > 0 {
			rows[i].AverageRating = float64(rows[i].RatingSum) / float64(rows[i].RatingCount)
		}
	}
	return rows, nil
}
