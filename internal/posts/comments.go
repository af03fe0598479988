package posts

import "github.com/selivandex/market-pulse/pkg/models"

// CommentTree is an arena of comments with a parent → children index.
// Children are never stored; they are derived from parent references.
type CommentTree struct {
	nodes    []models.Comment
	children map[string][]int
	roots    []int
}

// CommentThread is one comment with its replies, for serialization
type CommentThread struct {
	Comment models.Comment
	Replies []CommentThread
}

// BuildCommentTree indexes comments by parent. A comment is a root when it
// has no parent or its parent is not in the set.
func BuildCommentTree(comments []models.Comment) *CommentTree {
	tree := &CommentTree{
		nodes:    comments,
		children: make(map[string][]int, len(comments)),
	}

	present := make(map[string]struct{}, len(comments))
	for _, c := range comments {
		present[c.ID] = struct{}{}
	}

	for i, c := range comments {
		if c.ParentID == nil {
			tree.roots = append(tree.roots, i)
			continue
		}
		if _, ok := present[*c.ParentID]; !ok {
			tree.roots = append(tree.roots, i)
			continue
		}
		tree.children[*c.ParentID] = append(tree.children[*c.ParentID], i)
	}

	return tree
}

// Len returns the number of comments in the tree
func (t *CommentTree) Len() int {
	return len(t.nodes)
}

// Roots returns top-level comments
func (t *CommentTree) Roots() []models.Comment {
	return t.pick(t.roots)
}

// Children returns direct replies of the comment with id
func (t *CommentTree) Children(id string) []models.Comment {
	return t.pick(t.children[id])
}

// Threads returns the nested view starting at the roots. Comments that are
// only reachable through a cycle in stored data are not returned.
func (t *CommentTree) Threads() []CommentThread {
	visited := make(map[string]bool, len(t.nodes))
	return t.threads(t.roots, visited)
}

func (t *CommentTree) threads(idx []int, visited map[string]bool) []CommentThread {
	out := make([]CommentThread, 0, len(idx))
	for _, i := range idx {
		c := t.nodes[i]
		if visited[c.ID] {
			continue
		}
		visited[c.ID] = true

		out = append(out, CommentThread{
			Comment: c,
			Replies: t.threads(t.children[c.ID], visited),
		})
	}
	return out
}

func (t *CommentTree) pick(idx []int) []models.Comment {
	out := make([]models.Comment, 0, len(idx))
	for _, i := range idx {
		out = append(out, t.nodes[i])
	}
	return out
}
