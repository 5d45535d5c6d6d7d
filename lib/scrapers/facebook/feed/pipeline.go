package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jill09166/facebook-group-post-scraper/lib/scrapers/facebook/core"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Fetcher fetches one feed page per call. *core.Client implements it.
type Fetcher interface {
	FetchPage(ctx context.Context, pageUrl string) (core.RawPage, error)
}

type Options struct {
	// 0 means unlimited
	MaxPosts int
	// 0 means unlimited
	MaxPages int
	// pause between successful page fetches
	PerPageDelay       time.Duration
	EmptyPageThreshold int
	IncludeComments    bool
	Retry              RetryConfig

	// resume a previous run from its last advanced cursor
	Resume *Cursor
	// called after every successful advance so the caller can persist
	// the cursor for resumption
	OnAdvance func(Cursor)
}

func (o Options) Validate() error {
	if o.MaxPosts < 0 || o.MaxPages < 0 {
		return fmt.Errorf("post and page caps must not be negative")
	}
	if o.PerPageDelay < 0 {
		return fmt.Errorf("per-page delay must not be negative")
	}
	if o.EmptyPageThreshold < 0 {
		return fmt.Errorf("empty page threshold must not be negative")
	}
	return o.Retry.Validate()
}

type Failure struct {
	Kind string `json:"kind"`
	Page int    `json:"page"`
}

type Summary struct {
	PagesFetched   int            `json:"pagesFetched"`
	PostsEmitted   int            `json:"postsEmitted"`
	TerminalReason TerminalReason `json:"terminalReason"`
	Failures       []Failure      `json:"failures"`
}

// Pipeline runs one group scrape: fetch, parse, reconcile, advance, until
// the cursor goes terminal. One pipeline owns one cursor and one seen-set;
// independent runs share nothing.
type Pipeline struct {
	fetcher Fetcher
	opts    Options
	seen    *SeenSet
	manager CursorManager
	retry   RetryController
}

func NewPipeline(fetcher Fetcher, opts Options) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		fetcher: fetcher,
		opts:    opts,
		seen:    NewSeenSet(),
		manager: CursorManager{EmptyPageThreshold: opts.EmptyPageThreshold},
		retry:   RetryController{Config: opts.Retry},
	}, nil
}

// Posts returns the canonical record per url in first-seen order,
// regardless of how many overlapping pages observed each of them.
func (p *Pipeline) Posts() []Post {
	return p.seen.Posts()
}

// Run pages through the feed starting at seed, invoking emit for every
// new or materially updated record. Pagination is inherently sequential,
// so this is a single-threaded step loop; cancellation is honored between
// steps, never mid-fetch, leaving the cursor resumable.
func (p *Pipeline) Run(ctx context.Context, seed string, emit func(Post)) (Summary, error) {
	ctx, span := tracer.Start(ctx, "pipeline:Run")
	defer span.End()
	span.SetAttributes(attribute.String("seed", seed))

	cursor := NewCursor(seed)
	if p.opts.Resume != nil {
		cursor = *p.opts.Resume
	}

	summary := Summary{}
	defer func() {
		span.SetAttributes(
			attribute.Int("pages_fetched", summary.PagesFetched),
			attribute.Int("posts_emitted", summary.PostsEmitted),
			attribute.String("terminal_reason", string(summary.TerminalReason)),
		)
	}()

	for {
		if ctx.Err() != nil {
			summary.TerminalReason = TerminalCancelled
			return summary, ctx.Err()
		}
		if p.opts.MaxPages > 0 && summary.PagesFetched >= p.opts.MaxPages {
			summary.TerminalReason = TerminalMaxPages
			return summary, nil
		}

		pageUrl := cursor.Request()
		slog.DebugContext(ctx, "fetching feed page", "url", pageUrl, "page", cursor.Page+1)

		page, err := p.retry.Fetch(ctx, func(ctx context.Context) (core.RawPage, error) {
			return p.fetcher.FetchPage(ctx, pageUrl)
		})

		var body []byte
		if err != nil {
			reason, absorbed := p.classifyRunError(ctx, err, cursor.Page+1, &summary)
			if !absorbed {
				summary.TerminalReason = reason
				if reason == TerminalCancelled {
					return summary, ctx.Err()
				}
				span.SetStatus(codes.Error, string(reason))
				return summary, nil
			}
			// malformed page, treated as empty
		} else {
			body = page.Body
		}
		summary.PagesFetched++

		posts := p.parseBody(ctx, body, seed, cursor.Page+1, &summary)
		if !p.opts.IncludeComments {
			for i := range posts {
				posts[i].TopComments = nil
			}
		}

		emitted, inserted := p.seen.Reconcile(posts)
		for _, post := range emitted {
			if emit != nil {
				emit(post)
			}
		}
		summary.PostsEmitted += len(emitted)

		if p.opts.MaxPosts > 0 && p.seen.Len() >= p.opts.MaxPosts {
			summary.TerminalReason = TerminalMaxPosts
			return summary, nil
		}

		next, reason := p.manager.Advance(cursor, body, inserted)
		if reason != "" {
			summary.TerminalReason = reason
			return summary, nil
		}
		cursor = next
		if p.opts.OnAdvance != nil {
			p.opts.OnAdvance(cursor)
		}

		if p.opts.PerPageDelay > 0 {
			if err := p.retry.sleep(ctx, p.opts.PerPageDelay); err != nil {
				summary.TerminalReason = TerminalCancelled
				return summary, err
			}
		}
	}
}

// classifyRunError maps a failed fetch to either an absorbed empty page
// (malformed payloads) or a terminal reason for the run.
func (p *Pipeline) classifyRunError(ctx context.Context, err error, page int, summary *Summary) (TerminalReason, bool) {
	if ctx.Err() != nil {
		return TerminalCancelled, false
	}
	if errors.Is(err, ErrRetryBudgetExhausted) {
		summary.Failures = append(summary.Failures, Failure{Kind: string(TerminalRetryBudget), Page: page})
		return TerminalRetryBudget, false
	}

	var failure *core.FetchFailure
	if errors.As(err, &failure) {
		summary.Failures = append(summary.Failures, Failure{Kind: string(failure.Kind), Page: page})
		switch failure.Kind {
		case core.FailureMalformed:
			slog.WarnContext(ctx, "malformed page treated as empty", "page", page, "err", err)
			return "", true
		case core.FailureAuthExpired:
			return TerminalAuthExpired, false
		case core.FailureNotFound:
			return TerminalNotFound, false
		default:
			return TerminalRetryBudget, false
		}
	}

	summary.Failures = append(summary.Failures, Failure{Kind: string(core.FailureTransient), Page: page})
	return TerminalRetryBudget, false
}

// parseBody is the absorb-everything parse step: an unrecognizable
// payload degrades to an empty page rather than failing the run.
func (p *Pipeline) parseBody(ctx context.Context, body []byte, seed string, page int, summary *Summary) []Post {
	if len(body) == 0 {
		return nil
	}
	result, err := ParsePage(ctx, body, seed)
	if err != nil {
		slog.WarnContext(ctx, "unrecognizable payload treated as empty page", "page", page, "err", err)
		summary.Failures = append(summary.Failures, Failure{Kind: "parse_error", Page: page})
		return nil
	}
	if result.Partial {
		slog.InfoContext(ctx, "partial payload, recovered fewer fields than expected", "page", page)
	}
	return result.Posts
}
