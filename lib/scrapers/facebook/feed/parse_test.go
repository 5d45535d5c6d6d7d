package feed

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const groupUrl = "https://www.facebook.com/groups/buyandsell/"

const feedFixture = `<html><body><div role="feed">
	<div role="article">
		<a role="link" href="/janedoe">Jane Doe</a>
		<abbr data-utime="1715342400">May 10</abbr>
		<div dir="auto">Selling my old bike, lightly used</div>
		<a href="/groups/buyandsell/posts/123456789/?comment_id=1&ref=feed#reply">Full Story</a>
		<img src="https://scontent.cdn.example/bike.jpg" alt="a bike" />
		<a href="https://example.com/bike-listing">See the listing</a>
		<div>12 reactions · 3 comments · 1 share</div>
	</div>
	<div role="article">
		<a role="link" href="https://www.facebook.com/profile.php?id=100200">Bob</a>
		<a href="/groups/buyandsell/permalink/987/">Yesterday</a>
		<div dir="auto">Looking for a lawnmower</div>
	</div>
</div></body></html>`

func TestParsePageExtractsPosts(t *testing.T) {
	result, err := ParsePage(context.Background(), []byte(feedFixture), groupUrl)
	require.NoError(t, err)
	require.Len(t, result.Posts, 2)

	first := result.Posts[0]
	expected := Post{
		CreatedAt: 1715342400,
		Url:       "https://www.facebook.com/groups/buyandsell/posts/123456789/",
		User: Author{
			Id:   "janedoe",
			Name: "Jane Doe",
			Url:  "https://www.facebook.com/janedoe",
		},
		Text: "Selling my old bike, lightly used",
		Attachments: []Attachment{
			{Type: "image", Url: "https://scontent.cdn.example/bike.jpg", Alt: "a bike"},
			{Type: "link", Url: "https://example.com/bike-listing", Text: "See the listing"},
		},
		ReactionCount: 12,
		ShareCount:    1,
		CommentCount:  3,
	}
	diff := cmp.Diff(expected, first)
	if diff != "" {
		t.Fatal(diff)
	}

	second := result.Posts[1]
	require.Equal(t, "https://www.facebook.com/groups/buyandsell/permalink/987/", second.Url)
	require.Equal(t, "100200", second.User.Id)
	// second post has no timestamp anywhere, so the page is partial
	require.Zero(t, second.CreatedAt)
	require.True(t, result.Partial)
}

func TestParsePageIsolatesBrokenPosts(t *testing.T) {
	// the middle article has no permalink and must not take its
	// siblings down with it
	body := `<html><body><div role="feed">
		<div role="article">
			<a role="link" href="/a">A</a>
			<a href="/groups/g/posts/1/">p</a>
			<abbr data-utime="1715342400">t</abbr>
		</div>
		<div role="article"><span>sponsored</span></div>
		<div role="article">
			<a role="link" href="/b">B</a>
			<a href="/groups/g/posts/2/">p</a>
			<abbr data-utime="1715342401">t</abbr>
		</div>
	</div></body></html>`

	result, err := ParsePage(context.Background(), []byte(body), groupUrl)
	require.NoError(t, err)
	require.Len(t, result.Posts, 2)
	require.True(t, result.Partial)
	require.Equal(t, "https://www.facebook.com/groups/g/posts/1/", result.Posts[0].Url)
	require.Equal(t, "https://www.facebook.com/groups/g/posts/2/", result.Posts[1].Url)
}

func TestParsePageEmptyFeedIsNotAnError(t *testing.T) {
	body := `<html><body><div role="feed"></div></body></html>`
	result, err := ParsePage(context.Background(), []byte(body), groupUrl)
	require.NoError(t, err)
	require.Empty(t, result.Posts)
	require.False(t, result.Partial)
}

func TestParsePageUnrecognizedPayload(t *testing.T) {
	for _, body := range []string{
		`<html><body><form><p>Log in to continue</p></form></body></html>`,
		`not html at all, just text`,
	} {
		_, err := ParsePage(context.Background(), []byte(body), groupUrl)
		require.ErrorIs(t, err, ErrUnrecognizedPayload)
	}
}

func TestParsePageCommentsFromMarkup(t *testing.T) {
	body := `<html><body><div role="feed">
		<div role="article">
			<a role="link" href="/seller">Seller</a>
			<a href="/groups/g/posts/10/">p</a>
			<abbr data-utime="1715342400">t</abbr>
			<div aria-label="Comment by Sam">
				<a href="https://www.facebook.com/profile.php?id=777">Sam Smith</a>
				Great bike would buy again
			</div>
		</div>
	</div></body></html>`

	result, err := ParsePage(context.Background(), []byte(body), groupUrl)
	require.NoError(t, err)
	require.Len(t, result.Posts, 1)
	require.Len(t, result.Posts[0].TopComments, 1)

	comment := result.Posts[0].TopComments[0]
	require.Equal(t, "777", comment.Author.Id)
	require.Equal(t, "Sam Smith", comment.Author.Name)
	require.Contains(t, comment.Text, "Great bike would buy again")
}

func TestParsePageCommentsFromEmbeddedJson(t *testing.T) {
	body := `<html><body><div role="feed">
		<div role="article">
			<a role="link" href="/seller">Seller</a>
			<a href="/groups/g/posts/11/">p</a>
			<script type="application/json">{"comments": [
				{"node": {"text": "nice find", "created_time": 1715000000, "author": {"id": "9", "name": "Ann"}}},
				{"text": "is it still available", "author": {"id": "12", "name": "Ed"}}
			]}</script>
		</div>
	</div></body></html>`

	result, err := ParsePage(context.Background(), []byte(body), groupUrl)
	require.NoError(t, err)
	require.Len(t, result.Posts, 1)

	comments := result.Posts[0].TopComments
	require.Len(t, comments, 2)
	require.Equal(t, "nice find", comments[0].Text)
	require.Equal(t, int64(1715000000), comments[0].CreatedAt)
	require.Equal(t, "Ann", comments[0].Author.Name)
	require.Equal(t, "Ed", comments[1].Author.Name)
}

func TestParseApproxCount(t *testing.T) {
	table := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"12", 12, true},
		{"1,204", 1204, true},
		{"1.2k", 1200, true},
		{"3m", 3_000_000, true},
		{"4 K", 4000, true},
		{"", 0, false},
		{"a few", 0, false},
	}
	for _, test := range table {
		got, ok := parseApproxCount(test.raw)
		require.Equal(t, test.ok, ok, test.raw)
		require.Equal(t, test.want, got, test.raw)
	}
}
