package services

import (
	"sort"

	"github.com/cppla/codechannels/models"
)

// ReplyNode is a reply with its rating total and nested children.
type ReplyNode struct {
	models.Reply
	TotalRating  int          `json:"totalRating"`
	ChildReplies []*ReplyNode `json:"childReplies"`
}

// ReplyIndex holds every reply of one message, indexed by parent id.
// Replies live in an arena sorted by (CreatedAt, ID); adjacency lists hold
// arena positions, so every sibling list inherits that order.
type ReplyIndex struct {
	arena    []models.Reply
	roots    []int
	children map[uint][]int
	totals   map[uint]int
}

// IndexReplies builds the parent index in one pass. Only ratings targeting
// replies are considered; each reply's total goes through TotalRating.
func IndexReplies(replies []models.Reply, ratings []models.Rating) *ReplyIndex {
	arena := make([]models.Reply, len(replies))
	copy(arena, replies)
	sort.SliceStable(arena, func(i, j int) bool {
		a, b := arena[i], arena[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	ix := &ReplyIndex{
		arena:    arena,
		children: make(map[uint][]int),
		totals:   make(map[uint]int),
	}
	for i, r := range arena {
		if r.ParentReplyID == nil {
			ix.roots = append(ix.roots, i)
			continue
		}
		ix.children[*r.ParentReplyID] = append(ix.children[*r.ParentReplyID], i)
	}

	grouped := make(map[uint][]models.Rating)
	for _, rt := range ratings {
		if rt.TargetType != models.TargetReply {
			continue
		}
		grouped[rt.TargetID] = append(grouped[rt.TargetID], rt)
	}
	for id, group := range grouped {
		ix.totals[id] = TotalRating(group)
	}
	return ix
}

// Children materialises the forest below parentID; nil means top-level replies.
// Replies whose parent is not reachable from there are not emitted, a reply
// id is emitted at most once, and a corrupt cycle terminates.
func (ix *ReplyIndex) Children(parentID *uint) []*ReplyNode {
	visited := make(map[uint]bool)
	if parentID == nil {
		return ix.materialise(ix.roots, visited)
	}
	visited[*parentID] = true
	return ix.materialise(ix.children[*parentID], visited)
}

func (ix *ReplyIndex) materialise(positions []int, visited map[uint]bool) []*ReplyNode {
	nodes := make([]*ReplyNode, 0, len(positions))
	for _, pos := range positions {
		r := ix.arena[pos]
		if visited[r.ID] {
			continue
		}
		visited[r.ID] = true
		node := &ReplyNode{Reply: r, TotalRating: ix.totals[r.ID]}
		node.ChildReplies = ix.materialise(ix.children[r.ID], visited)
		nodes = append(nodes, node)
	}
	return nodes
}

// Total returns the rating total of a reply held by the index.
func (ix *ReplyIndex) Total(replyID uint) int {
	return ix.totals[replyID]
}

// Descendants returns rootID followed by every reply below it, breadth first.
func (ix *ReplyIndex) Descendants(rootID uint) []uint {
	seen := map[uint]bool{rootID: true}
	ids := []uint{rootID}
	for i := 0; i < len(ids); i++ {
		for _, pos := range ix.children[ids[i]] {
			id := ix.arena[pos].ID
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// BuildReplyTree indexes the replies of one message and returns the ordered
// forest below parentID (nil for the top level).
func BuildReplyTree(replies []models.Reply, ratings []models.Rating, parentID *uint) []*ReplyNode {
	return IndexReplies(replies, ratings).Children(parentID)
}

// DescendantIDs returns rootID and the ids of its whole subtree.
func DescendantIDs(replies []models.Reply, rootID uint) []uint {
	return IndexReplies(replies, nil).Descendants(rootID)
}
