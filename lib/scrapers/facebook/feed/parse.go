package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Jill09166/facebook-group-post-scraper/lib/htmlutil"
	"github.com/Jill09166/facebook-group-post-scraper/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/facebook/feed")

// ErrUnrecognizedPayload means the payload's top level structure is not a
// feed page at all. Anything less severe degrades to fewer posts or fields.
var ErrUnrecognizedPayload = errors.New("payload is not a recognizable feed page")

type ParseResult struct {
	Posts []Post
	// true when at least one post came out with fewer fields than the
	// page format is believed to carry. soft signal, not an error.
	Partial bool
}

// ParsePage extracts candidate posts from one raw feed payload. A single
// malformed post never discards its siblings; missing fields default to
// zero values.
func ParsePage(ctx context.Context, body []byte, groupUrl string) (ParseResult, error) {
	ctx, span := tracer.Start(ctx, "ParsePage")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "not parseable as html")
		return ParseResult{}, ErrUnrecognizedPayload
	}

	articles := doc.Find(`div[role="article"]`)
	if articles.Length() == 0 {
		// older mobile markup
		articles = doc.Find("div[aria-posinset], div.story_body_container")
	}
	if articles.Length() == 0 && !hasFeedContainer(doc) {
		span.SetStatus(codes.Error, "no feed container")
		return ParseResult{}, ErrUnrecognizedPayload
	}

	now := time.Now().UTC()
	result := ParseResult{}
	articles.Each(func(idx int, sel *goquery.Selection) {
		post, degraded, ok := parsePost(sel, groupUrl, now)
		if !ok {
			slog.DebugContext(ctx, "skipping unparseable post", "index", idx)
			result.Partial = true
			return
		}
		if degraded {
			result.Partial = true
		}
		result.Posts = append(result.Posts, post)
	})

	span.SetAttributes(
		attribute.Int("posts", len(result.Posts)),
		attribute.Bool("partial", result.Partial),
	)
	return result, nil
}

func hasFeedContainer(doc *goquery.Document) bool {
	return doc.Find(`[role="feed"], div#m_group_stories_container, div[data-pagelet]`).Length() > 0
}

// parsePost converts one article container into a Post. ok is false only
// when no stable post identity (a permalink) could be derived.
func parsePost(sel *goquery.Selection, groupUrl string, now time.Time) (Post, bool, bool) {
	postUrl := extractPostUrl(sel)
	if postUrl == "" {
		return Post{}, true, false
	}

	author, authorOk := extractAuthor(sel)
	createdAt := extractCreatedAt(sel, now)

	reactions, comments, shares := extractEngagement(sel)

	post := Post{
		CreatedAt:     createdAt,
		Url:           postUrl,
		User:          author,
		Text:          extractText(sel),
		Attachments:   extractAttachments(sel),
		ReactionCount: reactions,
		ShareCount:    shares,
		CommentCount:  comments,
		TopComments:   extractComments(sel, now),
	}
	degraded := !authorOk || createdAt == 0
	return post, degraded, true
}

func extractPostUrl(sel *goquery.Selection) string {
	for _, anchor := range htmlutil.GetAnchors(sel.Find("a")) {
		if strings.Contains(anchor.Href, "/posts/") || strings.Contains(anchor.Href, "/permalink/") {
			return normalizePostUrl(anchor.Href)
		}
	}
	return ""
}

// normalizePostUrl makes a permalink absolute and strips query and
// fragment noise so the same post observed twice keys identically.
func normalizePostUrl(href string) string {
	link, err := url.Parse(absoluteUrl(href))
	if err != nil {
		return absoluteUrl(href)
	}
	link.RawQuery = ""
	link.Fragment = ""
	return link.String()
}

func absoluteUrl(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return "https://www.facebook.com" + href
	}
	return "https://www.facebook.com/" + strings.TrimLeft(href, "./")
}

func extractAuthor(sel *goquery.Selection) (Author, bool) {
	var link htmlutil.Anchor
	sel.Find(`a[role="link"], a[tabindex]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		name := htmlutil.CleanText(a.Text())
		href := a.AttrOr("href", "")
		if name == "" || href == "" {
			return true
		}
		link = htmlutil.Anchor{Name: name, Href: href}
		return false
	})
	if link.Href == "" {
		return Author{}, false
	}

	profileUrl := absoluteUrl(link.Href)
	id := authorIdFromUrl(profileUrl)
	return Author{
		Id:   id,
		Name: link.Name,
		Url:  profileUrl,
	}, id != ""
}

func authorIdFromUrl(profileUrl string) string {
	link, err := url.Parse(profileUrl)
	if err != nil || !strings.Contains(link.Host, "facebook.com") {
		return ""
	}
	if id := link.Query().Get("id"); strings.Contains(link.Path, "profile.php") && id != "" {
		return id
	}
	segments := strings.Split(strings.Trim(link.Path, "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

func extractText(sel *goquery.Selection) string {
	var parts []string
	sel.Find(`div[dir="auto"], span[dir="auto"]`).Each(func(_ int, s *goquery.Selection) {
		if text := htmlutil.CleanText(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return htmlutil.CleanText(sel.Text())
}

func extractAttachments(sel *goquery.Selection) []Attachment {
	var attachments []Attachment

	sel.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if src == "" {
			return
		}
		attachments = append(attachments, Attachment{
			Type: "image",
			Url:  src,
			Alt:  img.AttrOr("alt", ""),
		})
	})

	for _, anchor := range htmlutil.GetAnchors(sel.Find("a")) {
		if anchor.Href == "" {
			continue
		}
		href := absoluteUrl(anchor.Href)
		// profile, permalink and comment links are navigation, not
		// attachments
		if strings.Contains(href, "facebook.com") {
			continue
		}
		if strings.Contains(strings.ToLower(href), "comment") {
			continue
		}
		attachments = append(attachments, Attachment{
			Type: "link",
			Url:  href,
			Text: anchor.Name,
		})
	}

	// dedup by (type, url), first observation wins
	seen := map[string]bool{}
	unique := attachments[:0]
	for _, att := range attachments {
		key := att.Type + "|" + att.Url
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, att)
	}
	return unique
}

var countRegex = regexp.MustCompile(`([\d][\d.,]*\s*[km]?)\s*(reaction|comment|share|like)s?\b`)

func extractEngagement(sel *goquery.Selection) (reactions, comments, shares int) {
	text := strings.ToLower(textutil.CollapseWhitespace(sel.Text()))
	for _, groups := range countRegex.FindAllStringSubmatch(text, -1) {
		count, ok := parseApproxCount(groups[1])
		if !ok {
			continue
		}
		switch groups[2] {
		case "reaction", "like":
			reactions = max(reactions, count)
		case "comment":
			comments = max(comments, count)
		case "share":
			shares = max(shares, count)
		}
	}
	return reactions, comments, shares
}

// parseApproxCount reads counts as the feed displays them: "12", "1,204",
// "1.2k", "3m".
func parseApproxCount(raw string) (int, bool) {
	raw = strings.ReplaceAll(strings.TrimSpace(strings.ToLower(raw)), ",", "")
	multiplier := 1.0
	if strings.HasSuffix(raw, "k") {
		multiplier = 1000
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "k"))
	} else if strings.HasSuffix(raw, "m") {
		multiplier = 1_000_000
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "m"))
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return int(value * multiplier), true
}

func extractCreatedAt(sel *goquery.Selection, now time.Time) int64 {
	var found int64
	sel.Find("abbr, time, span, a").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		for _, attr := range []string{"data-utime", "datetime", "title", "data-tooltip-content"} {
			raw := el.AttrOr(attr, "")
			if raw == "" {
				continue
			}
			if ts, ok := parseFeedTime(raw, now); ok {
				found = ts
				return false
			}
		}
		return true
	})
	if found != 0 {
		return found
	}

	// relative time in the visible text, e.g. "2 h" or "3 d"
	if ts, ok := parseFeedTime(textutil.CollapseWhitespace(sel.Text()), now); ok {
		return ts
	}
	return 0
}

func extractComments(sel *goquery.Selection, now time.Time) []Comment {
	var comments []Comment

	sel.Find("div[aria-label]").Each(func(_ int, cdiv *goquery.Selection) {
		if !strings.Contains(strings.ToLower(cdiv.AttrOr("aria-label", "")), "comment") {
			return
		}

		var author Author
		if anchors := htmlutil.GetAnchors(cdiv.Find("a")); len(anchors) > 0 && anchors[0].Name != "" {
			profileUrl := absoluteUrl(anchors[0].Href)
			author = Author{
				Id:   authorIdFromUrl(profileUrl),
				Name: anchors[0].Name,
				Url:  profileUrl,
			}
		}

		text := htmlutil.CleanText(cdiv.Text())
		createdAt, _ := parseFeedTime(text, now)

		comments = append(comments, Comment{
			Text:      text,
			CreatedAt: createdAt,
			Author:    author,
		})
	})

	// comments are frequently only present as embedded json
	if len(comments) == 0 {
		comments = extractCommentsFromScripts(sel, now)
	}
	return comments
}

func extractCommentsFromScripts(sel *goquery.Selection, now time.Time) []Comment {
	var comments []Comment

	for _, node := range sel.Find("script").Nodes {
		text := htmlutil.GetText(node)
		if !strings.Contains(strings.ToLower(text), "comment") {
			continue
		}
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start == -1 || end <= start {
			continue
		}

		var blob map[string]any
		if err := json.Unmarshal([]byte(text[start:end+1]), &blob); err != nil {
			continue
		}

		items, ok := blob["comments"].([]any)
		if !ok {
			items, ok = blob["edges"].([]any)
		}
		if !ok {
			continue
		}

		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if node, ok := entry["node"].(map[string]any); ok {
				entry = node
			}
			comments = append(comments, commentFromJSON(entry, now))
		}
	}
	return comments
}

func commentFromJSON(entry map[string]any, now time.Time) Comment {
	comment := Comment{
		Text:          jsonString(entry, "text", "body"),
		ReactionCount: jsonInt(entry, "reaction_count"),
		CommentCount:  jsonInt(entry, "comment_count"),
	}
	if raw := jsonString(entry, "created_time", "created_at"); raw != "" {
		comment.CreatedAt, _ = parseFeedTime(raw, now)
	}
	if author, ok := entry["author"].(map[string]any); ok {
		comment.Author = Author{
			Id:   jsonString(author, "id"),
			Name: jsonString(author, "name"),
			Url:  jsonString(author, "url"),
		}
	}
	return comment
}

// jsonString reads the first of the given keys as a string, numbers are
// formatted back to their literal form.
func jsonString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func jsonInt(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}
