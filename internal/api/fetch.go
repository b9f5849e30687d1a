package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rickgao/fmp-data/internal/model"
)

const dateLayout = "2006-01-02"

// maxRawSample bounds the payload kept on a DecodeFailedError.
const maxRawSample = 512

// Fetch requests one page of et. For paged list sources cursor is the
// page number ("" = first page); other sources ignore it.
func (c *Client) Fetch(ctx context.Context, et *model.EntityType, p Params, cursor string) (*Page, error) {
	path, query, page, err := c.buildRequest(et, p, cursor)
	if err != nil {
		return nil, &FetchFailedError{Entity: et.ID, Cursor: cursor, Cause: err}
	}

	body, err := c.doWithRetry(ctx, path, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var rl *RateLimitExceededError
		if errors.As(err, &rl) {
			rl.Entity = et.ID
			return nil, rl
		}
		return nil, &FetchFailedError{Entity: et.ID, Cursor: cursor, Cause: err}
	}

	records, items, rejected, err := decodePage(et, body, p.Symbols)
	if err != nil {
		raw := body
		if len(raw) > maxRawSample {
			raw = raw[:maxRawSample]
		}
		next, done := "", true
		if et.Paged {
			next, done = strconv.Itoa(page+1), false
		}
		return nil, &DecodeFailedError{
			Entity: et.ID,
			Cursor: cursor,
			Raw:    raw,
			Cause:  err,
			Next:   next,
			Done:   done,
		}
	}

	out := &Page{
		Records:  records,
		Items:    items,
		Rejected: rejected,
		Done:     true,
	}
	if et.Paged {
		out.Next = strconv.Itoa(page + 1)
		out.Done = items == 0 || items < c.pageSize
	}

	c.logger.Debug("fetched page",
		"entity", et.ID,
		"cursor", cursor,
		"items", items,
		"rejected", rejected,
	)

	return out, nil
}

func (c *Client) buildRequest(et *model.EntityType, p Params, cursor string) (string, url.Values, int, error) {
	query := url.Values{}
	for k, v := range et.Query {
		query.Set(k, v)
	}

	path := et.Endpoint
	if et.Source == model.SourcePerSymbol {
		if len(p.Symbols) == 0 {
			return "", nil, 0, fmt.Errorf("no symbols for per-symbol endpoint")
		}
		escaped := make([]string, len(p.Symbols))
		for i, s := range p.Symbols {
			escaped[i] = url.PathEscape(s)
		}
		path = strings.ReplaceAll(path, "{symbol}", strings.Join(escaped, ","))
	}

	if et.Windowed {
		if !p.From.IsZero() {
			query.Set("from", p.From.UTC().Format(dateLayout))
		}
		if !p.To.IsZero() {
			query.Set("to", p.To.UTC().Format(dateLayout))
		}
	}

	page := 0
	if et.Paged {
		if cursor != "" {
			n, err := strconv.Atoi(cursor)
			if err != nil || n < 0 {
				return "", nil, 0, fmt.Errorf("invalid page cursor %q", cursor)
			}
			page = n
		}
		query.Set("page", strconv.Itoa(page))
		query.Set("limit", strconv.Itoa(c.pageSize))
	}

	return path, query, page, nil
}
