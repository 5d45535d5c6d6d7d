package feed

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TerminalReason says why a run stopped fetching.
type TerminalReason string

const (
	TerminalEndOfFeed   TerminalReason = "end_of_feed"
	TerminalCursorStall TerminalReason = "cursor_stall"
	TerminalEmptyStreak TerminalReason = "empty_streak"
	TerminalMaxPages    TerminalReason = "max_pages"
	TerminalMaxPosts    TerminalReason = "max_posts"
	TerminalAuthExpired TerminalReason = "auth_expired"
	TerminalNotFound    TerminalReason = "not_found"
	TerminalRetryBudget TerminalReason = "retry_budget_exhausted"
	TerminalCancelled   TerminalReason = "cancelled"
)

// Cursor is the pagination state of one run. Token is opaque: either a
// full next-page url, a token lifted from embedded json, or empty, in
// which case a computed page offset is used.
type Cursor struct {
	Seed  string
	Token string
	// pages consumed so far
	Page int
	// consecutive pages that yielded no new post identities
	EmptyStreak int
}

func NewCursor(seed string) Cursor {
	return Cursor{Seed: seed}
}

// Request builds the url to fetch for this cursor position.
func (c Cursor) Request() string {
	if strings.HasPrefix(c.Token, "http://") || strings.HasPrefix(c.Token, "https://") {
		return c.Token
	}
	link, err := url.Parse(c.Seed)
	if err != nil {
		return c.Seed
	}
	query := link.Query()
	if c.Token != "" {
		query.Set("cursor", c.Token)
	} else if c.Page > 0 {
		query.Set("page", strconv.Itoa(c.Page+1))
	}
	link.RawQuery = query.Encode()
	return link.String()
}

var endCursorRegex = regexp.MustCompile(`"end_cursor"\s*:\s*"([^"]+)"`)
var hasNextFalseRegex = regexp.MustCompile(`"has_next_page"\s*:\s*false`)

// CursorManager derives the next cursor from the current page payload and
// decides when the feed is exhausted.
type CursorManager struct {
	// consecutive no-new-identity pages tolerated before declaring the
	// feed dead, guards against a remote cursor that silently stopped
	// advancing
	EmptyPageThreshold int
}

const DefaultEmptyPageThreshold = 3

func (m CursorManager) threshold() int {
	if m.EmptyPageThreshold > 0 {
		return m.EmptyPageThreshold
	}
	return DefaultEmptyPageThreshold
}

// Advance consumes the current payload and yields the next cursor, or a
// terminal reason when one of the exit conditions is met: an explicit
// end-of-feed marker, a stalled token, or too many consecutive pages
// without new posts.
func (m CursorManager) Advance(cur Cursor, body []byte, newPosts int) (Cursor, TerminalReason) {
	if isEndOfFeed(body) {
		return cur, TerminalEndOfFeed
	}

	token := nextToken(cur.Seed, body)
	if token != "" && token == cur.Token {
		return cur, TerminalCursorStall
	}

	next := Cursor{
		Seed:  cur.Seed,
		Token: token,
		Page:  cur.Page + 1,
	}
	if newPosts == 0 {
		next.EmptyStreak = cur.EmptyStreak + 1
		if next.EmptyStreak >= m.threshold() {
			return cur, TerminalEmptyStreak
		}
	}
	return next, ""
}

func isEndOfFeed(body []byte) bool {
	if hasNextFalseRegex.Match(body) {
		return true
	}
	return bytes.Contains(body, []byte(`data-testid="end_of_feed"`))
}

// nextToken pulls a pagination token out of the payload: a cursor in
// embedded json, or a rel=next anchor resolved against the seed.
func nextToken(seed string, body []byte) string {
	if groups := endCursorRegex.FindSubmatch(body); groups != nil {
		return string(groups[1])
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	href := doc.Find(`a[rel="next"]`).AttrOr("href", "")
	if href == "" {
		return ""
	}
	seedUrl, err := url.Parse(seed)
	if err != nil {
		return href
	}
	nextUrl, err := seedUrl.Parse(href)
	if err != nil {
		return href
	}
	return nextUrl.String()
}
