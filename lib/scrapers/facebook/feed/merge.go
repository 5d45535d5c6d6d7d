package feed

import (
	"sort"

	"github.com/Jill09166/facebook-group-post-scraper/lib/textutil"
)

// SeenSet tracks the canonical record for every post url observed during
// one run. It is owned by that run alone, so no locking is needed.
type SeenSet struct {
	posts map[string]Post
	order []string
}

func NewSeenSet() *SeenSet {
	return &SeenSet{posts: map[string]Post{}}
}

func (s *SeenSet) Len() int {
	return len(s.order)
}

// Posts returns the canonical records in first-seen order.
func (s *SeenSet) Posts() []Post {
	out := make([]Post, len(s.order))
	for i, url := range s.order {
		out[i] = s.posts[url]
	}
	return out
}

// Reconcile folds one page's candidates into the set. New identities are
// inserted and emitted; known identities are merged field by field and
// re-emitted only on a material change, where growing engagement counts
// alone do not qualify. inserted counts the identities not seen before,
// which drives duplicate-page detection.
func (s *SeenSet) Reconcile(candidates []Post) (emitted []Post, inserted int) {
	for _, candidate := range candidates {
		if candidate.Url == "" {
			continue
		}

		old, known := s.posts[candidate.Url]
		if !known {
			sortComments(candidate.TopComments)
			candidate.CommentCount = max(candidate.CommentCount, len(candidate.TopComments))
			s.posts[candidate.Url] = candidate
			s.order = append(s.order, candidate.Url)
			emitted = append(emitted, candidate)
			inserted++
			continue
		}

		merged, material := mergePost(old, candidate)
		s.posts[candidate.Url] = merged
		if material {
			emitted = append(emitted, merged)
		}
	}
	return emitted, inserted
}

// mergePost reconciles two observations of the same post into the fullest
// known version. Engagement counts only ever increase, text and
// attachments prefer the non-empty or longer value.
func mergePost(old, next Post) (Post, bool) {
	merged := old
	material := false

	merged.ReactionCount = max(old.ReactionCount, next.ReactionCount)
	merged.ShareCount = max(old.ShareCount, next.ShareCount)
	merged.CommentCount = max(old.CommentCount, next.CommentCount)

	if len(next.Text) > len(merged.Text) {
		merged.Text = next.Text
		material = true
	}
	if len(next.Attachments) > len(merged.Attachments) {
		merged.Attachments = next.Attachments
		material = true
	}
	if merged.CreatedAt == 0 && next.CreatedAt != 0 {
		merged.CreatedAt = next.CreatedAt
		material = true
	}

	var authorChanged bool
	merged.User, authorChanged = mergeAuthor(old.User, next.User)
	material = material || authorChanged

	var commentsChanged bool
	merged.TopComments, commentsChanged = mergeComments(old.TopComments, next.TopComments)
	material = material || commentsChanged

	merged.CommentCount = max(merged.CommentCount, len(merged.TopComments))
	return merged, material
}

// mergeAuthor keeps the stable id and fills gaps, the latest non-empty
// display name wins.
func mergeAuthor(old, next Author) (Author, bool) {
	merged := old
	changed := false

	if merged.Id == "" && next.Id != "" {
		merged.Id = next.Id
		changed = true
	}
	if merged.Url == "" && next.Url != "" {
		merged.Url = next.Url
		changed = true
	}
	if next.Name != "" && next.Name != merged.Name {
		// casing and whitespace drift is not a material change
		if textutil.NormalizeName(next.Name) != textutil.NormalizeName(merged.Name) {
			changed = true
		}
		merged.Name = next.Name
	}
	return merged, changed
}

// mergeComments unions two comment sets by comment identity and orders
// the result most-engaged first: descending reactionCount, then ascending
// createdAt.
func mergeComments(old, next []Comment) ([]Comment, bool) {
	if len(next) == 0 {
		return old, false
	}

	index := map[string]int{}
	merged := make([]Comment, len(old))
	copy(merged, old)
	for i, c := range merged {
		index[c.Identity()] = i
	}

	changed := false
	for _, c := range next {
		at, known := index[c.Identity()]
		if !known {
			index[c.Identity()] = len(merged)
			merged = append(merged, c)
			changed = true
			continue
		}
		// same comment observed again, counts only grow
		merged[at].ReactionCount = max(merged[at].ReactionCount, c.ReactionCount)
		merged[at].CommentCount = max(merged[at].CommentCount, c.CommentCount)
	}

	sortComments(merged)
	return merged, changed
}

// sortComments orders most-engaged first: descending reactionCount, then
// ascending createdAt, stable past that.
func sortComments(comments []Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].ReactionCount != comments[j].ReactionCount {
			return comments[i].ReactionCount > comments[j].ReactionCount
		}
		return comments[i].CreatedAt < comments[j].CreatedAt
	})
}
