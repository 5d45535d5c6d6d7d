package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Jill09166/facebook-group-post-scraper/lib/scrapers/facebook/feed"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xuri/excelize/v2"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// NormalizeFormats lowercases and dedups the requested formats, rejecting
// anything unknown up front.
func NormalizeFormats(formats []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "" || seen[format] {
			continue
		}
		switch format {
		case FormatJSON, FormatCSV, FormatXLSX:
		default:
			return nil, fmt.Errorf("unknown output format: %q", format)
		}
		seen[format] = true
		out = append(out, format)
	}
	return out, nil
}

// Posts writes the finalized records to <dir>/<base>.<format> for every
// requested format.
func Posts(posts []feed.Post, dir, base string, formats []string) error {
	if len(posts) == 0 {
		slog.Warn("no posts to export")
		return nil
	}

	formats, err := NormalizeFormats(formats)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, format := range formats {
		path := filepath.Join(dir, fmt.Sprintf("%s.%s", base, format))
		switch format {
		case FormatJSON:
			err = writeJSON(posts, path)
		case FormatCSV:
			err = writeCSV(posts, path)
		case FormatXLSX:
			err = writeXLSX(posts, path)
		}
		if err != nil {
			return fmt.Errorf("export %s: %w", format, err)
		}
		slog.Info("exported posts", "count", len(posts), "path", path)
	}
	return nil
}

// normalizePost keeps the nested collections as arrays even when empty,
// a nil slice would serialize as null
func normalizePost(post feed.Post) feed.Post {
	if post.Attachments == nil {
		post.Attachments = []feed.Attachment{}
	}
	if post.TopComments == nil {
		post.TopComments = []feed.Comment{}
	}
	return post
}

func writeJSON(posts []feed.Post, path string) error {
	normalized := make([]feed.Post, len(posts))
	for i, post := range posts {
		normalized[i] = normalizePost(post)
	}
	contents, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, contents, 0o644)
}

var flatHeader = table.Row{
	"createdAt", "url",
	"user.id", "user.name", "user.url",
	"text",
	"reactionCount", "shareCount", "commentCount",
	"attachments", "topComments",
}

// flattenPost serializes the nested structures to json strings, the same
// shape for both tabular formats.
func flattenPost(post feed.Post) (table.Row, error) {
	post = normalizePost(post)
	attachments, err := json.Marshal(post.Attachments)
	if err != nil {
		return nil, err
	}
	comments, err := json.Marshal(post.TopComments)
	if err != nil {
		return nil, err
	}
	return table.Row{
		post.CreatedAt, post.Url,
		post.User.Id, post.User.Name, post.User.Url,
		post.Text,
		post.ReactionCount, post.ShareCount, post.CommentCount,
		string(attachments), string(comments),
	}, nil
}

func writeCSV(posts []feed.Post, path string) error {
	t := table.NewWriter()
	t.AppendHeader(flatHeader)
	for _, post := range posts {
		row, err := flattenPost(post)
		if err != nil {
			return err
		}
		t.AppendRow(row)
	}
	return os.WriteFile(path, []byte(t.RenderCSV()+"\n"), 0o644)
}

func writeXLSX(posts []feed.Post, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Posts"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := make([]any, len(flatHeader))
	copy(header, flatHeader)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, post := range posts {
		row, err := flattenPost(post)
		if err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		copy(values, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}
