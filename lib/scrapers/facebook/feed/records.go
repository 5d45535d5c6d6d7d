package feed

import (
	"fmt"
	"hash/fnv"

	"github.com/Jill09166/facebook-group-post-scraper/lib/textutil"
)

// Author is a platform user as observed on a feed page. Authors are
// embedded by value: the same person showing up on two posts carries no
// shared mutable identity.
type Author struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Url  string `json:"url"`
}

type Attachment struct {
	Type string `json:"type"`
	Url  string `json:"url"`
	Alt  string `json:"alt,omitempty"`
	Text string `json:"text,omitempty"`
}

type Comment struct {
	Text          string `json:"text"`
	CreatedAt     int64  `json:"createdAt"`
	Author        Author `json:"author"`
	ReactionCount int    `json:"reactionCount"`
	// reply count
	CommentCount int `json:"commentCount"`
}

// Identity keys a comment across pages. The platform does not always
// expose comment ids, so author, timestamp and a content hash stand in.
func (c Comment) Identity() string {
	h := fnv.New64a()
	h.Write([]byte(textutil.CollapseWhitespace(c.Text)))
	return fmt.Sprintf("%s|%d|%x", c.Author.Id, c.CreatedAt, h.Sum64())
}

// Post is one group feed post. Url is its identity within a run.
type Post struct {
	CreatedAt     int64        `json:"createdAt"`
	Url           string       `json:"url"`
	User          Author       `json:"user"`
	Text          string       `json:"text"`
	Attachments   []Attachment `json:"attachments"`
	ReactionCount int          `json:"reactionCount"`
	ShareCount    int          `json:"shareCount"`
	CommentCount  int          `json:"commentCount"`
	// most engaged first: descending reactionCount, then ascending createdAt
	TopComments []Comment `json:"topComments"`
}
