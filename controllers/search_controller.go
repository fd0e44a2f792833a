package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/codechannels/services"
	"github.com/cppla/codechannels/utils"
)

// SearchController serves keyword search and user leaderboards.
type SearchController struct {
	search *services.SearchService
}

// NewSearchController creates a new SearchController instance.
func NewSearchController(search *services.SearchService) *SearchController {
	return &SearchController{search: search}
}

func queryParam(ctx *gin.Context) (string, bool) {
	q := strings.TrimSpace(ctx.Query("query"))
	if q == "" {
		utils.Error(ctx, http.StatusBadRequest, 40050, "search query is required")
		return "", false
	}
	return q, true
}

// SearchByKeyword matches the query against channels, messages, replies and users.
func (s *SearchController) SearchByKeyword(ctx *gin.Context) {
	q, ok := queryParam(ctx)
	if !ok {
		return
	}
	res, err := s.search.Search(ctx.Request.Context(), q, parseLimit(ctx, defaultSearchLimit))
	if err != nil {
		respondError(ctx, err, "failed to search")
		return
	}
	utils.Success(ctx, res)
}

// SearchUsers matches usernames only.
func (s *SearchController) SearchUsers(ctx *gin.Context) {
	q, ok := queryParam(ctx)
	if !ok {
		return
	}
	users, err := s.search.SearchUsers(ctx.Request.Context(), q, parseLimit(ctx, defaultSearchLimit))
	if err != nil {
		respondError(ctx, err, "failed to search users")
		return
	}
	utils.Success(ctx, users)
}

// UsersWithMostPosts ranks users by messages plus replies.
func (s *SearchController) UsersWithMostPosts(ctx *gin.Context) {
	rows, err := s.search.UsersWithMostPosts(ctx.Request.Context(), parseLimit(ctx, defaultRankingLimit))
	if err != nil {
		respondError(ctx, err, "failed to rank users")
		return
	}
	utils.Success(ctx, rows)
}

// UsersWithHighestRatings ranks users by the average rating of their posts.
func (s *SearchController) UsersWithHighestRatings(ctx *gin.Context) {
	rows, err := s.search.UsersWithHighestRatings(ctx.Request.Context(), parseLimit(ctx, defaultRankingLimit))
	if err != nil {
		respondError(ctx, err, "failed to rank users")
		return
	}
	utils.Success(ctx, rows)
}
