package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const seedUrl = "https://www.facebook.com/groups/buyandsell/"

func TestCursorRequest(t *testing.T) {
	table := []struct {
		name   string
		cursor Cursor
		want   string
	}{
		{
			name:   "first page is the seed itself",
			cursor: NewCursor(seedUrl),
			want:   seedUrl,
		},
		{
			name:   "opaque token becomes a cursor param",
			cursor: Cursor{Seed: seedUrl, Token: "AQHR0b3==", Page: 1},
			want:   seedUrl + "?cursor=AQHR0b3%3D%3D",
		},
		{
			name:   "absolute token is used verbatim",
			cursor: Cursor{Seed: seedUrl, Token: "https://m.facebook.com/groups/buyandsell/?bacr=xyz", Page: 2},
			want:   "https://m.facebook.com/groups/buyandsell/?bacr=xyz",
		},
		{
			name:   "no token falls back to a page offset",
			cursor: Cursor{Seed: seedUrl, Page: 3},
			want:   seedUrl + "?page=4",
		},
	}
	for _, test := range table {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, test.cursor.Request())
		})
	}
}

func TestAdvanceEndOfFeed(t *testing.T) {
	var manager CursorManager
	cur := Cursor{Seed: seedUrl, Token: "AQa", Page: 4}

	for _, body := range []string{
		`{"page_info": {"has_next_page": false, "end_cursor": "AQb"}}`,
		`<html><body><div data-testid="end_of_feed">You're all caught up</div></body></html>`,
	} {
		_, terminal := manager.Advance(cur, []byte(body), 7)
		require.Equal(t, TerminalEndOfFeed, terminal)
	}
}

func TestAdvanceCursorStall(t *testing.T) {
	var manager CursorManager
	body := []byte(`{"page_info": {"has_next_page": true, "end_cursor": "AQsame"}}`)

	// first sighting of the token is fine
	next, terminal := manager.Advance(Cursor{Seed: seedUrl}, body, 5)
	require.Empty(t, terminal)
	require.Equal(t, "AQsame", next.Token)
	require.Equal(t, 1, next.Page)

	// the very next page serving the same token is a stall, detected
	// after exactly one extra fetch
	_, terminal = manager.Advance(next, body, 5)
	require.Equal(t, TerminalCursorStall, terminal)
}

func TestAdvanceEmptyStreak(t *testing.T) {
	manager := CursorManager{EmptyPageThreshold: 3}
	cur := Cursor{Seed: seedUrl}

	bodyFor := func(token string) []byte {
		return []byte(`{"page_info": {"has_next_page": true, "end_cursor": "` + token + `"}}`)
	}

	var terminal TerminalReason
	cur, terminal = manager.Advance(cur, bodyFor("AQ1"), 0)
	require.Empty(t, terminal)
	require.Equal(t, 1, cur.EmptyStreak)

	cur, terminal = manager.Advance(cur, bodyFor("AQ2"), 0)
	require.Empty(t, terminal)
	require.Equal(t, 2, cur.EmptyStreak)

	// a productive page resets the streak
	cur, terminal = manager.Advance(cur, bodyFor("AQ3"), 4)
	require.Empty(t, terminal)
	require.Equal(t, 0, cur.EmptyStreak)

	cur, terminal = manager.Advance(cur, bodyFor("AQ4"), 0)
	require.Empty(t, terminal)
	cur, terminal = manager.Advance(cur, bodyFor("AQ5"), 0)
	require.Empty(t, terminal)
	_, terminal = manager.Advance(cur, bodyFor("AQ6"), 0)
	require.Equal(t, TerminalEmptyStreak, terminal)
}

func TestNextTokenFromRelNextAnchor(t *testing.T) {
	body := []byte(`<html><body>
		<div role="feed"></div>
		<a rel="next" href="/groups/buyandsell/?bacr=AQanchor">See more posts</a>
	</body></html>`)

	next, terminal := CursorManager{}.Advance(Cursor{Seed: seedUrl}, body, 2)
	require.Empty(t, terminal)
	require.Equal(t, "https://www.facebook.com/groups/buyandsell/?bacr=AQanchor", next.Token)
	require.Equal(t, seedUrl+"?bacr=AQanchor", next.Request())
}
