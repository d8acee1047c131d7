// Package extract pulls raw records out of the analytics API: windowed
// paginated session search, per-session enrichment, and dictionary listing.
package extract

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/convista/convsync/internal/window"
	"github.com/convista/convsync/pkg/types"
)

// API is the transport surface the extractor consumes.
type API interface {
	Search(ctx context.Context, filters string, skip, limit int) ([]types.Record, error)
	SessionDetail(ctx context.Context, sessionID, suffix string) (any, error)
	Dictionary(ctx context.Context, path string, limit int) ([]types.Record, error)
}

// Enrichment describes one per-session detail fetch: the endpoint suffix,
// the record field the response lands under, and an optional gate field that
// must be truthy for the fetch to be worth making.
type Enrichment struct {
	Name    string
	Suffix  string
	Require string
}

// Standard enrichments. Scores are gated on reviewers because unreviewed
// sessions have none; comments are gated on the session's comment counter.
var (
	EnrichScores   = Enrichment{Name: "scores", Suffix: "/scores", Require: "reviewers"}
	EnrichSummary  = Enrichment{Name: "summary", Suffix: "/summary"}
	EnrichComments = Enrichment{Name: "comments", Suffix: "/comments", Require: "comments_count"}
	EnrichInfo     = Enrichment{Name: "additional_info", Suffix: "/additional-info"}
)

// dictionaryEndpoints lists the reference-data endpoints in fetch order.
// Limits reflect upstream defaults that are too small for real deployments.
var dictionaryEndpoints = []struct {
	name  string
	path  string
	limit int
}{
	{"agents", "/agents", 999},
	{"categories", "/categories", 0},
	{"groups", "/agent-groups", 0},
	{"labels", "/labels", 0},
	{"scorecards", "/scorecards", 0},
	{"tags", "/tags", 9999},
	{"users", "/users", 999},
}

// Extractor drives the API for one run.
type Extractor struct {
	api       API
	log       zerolog.Logger
	pageLimit int
	logEvery  int
}

func New(api API, pageLimit, logEvery int, log zerolog.Logger) *Extractor {
	return &Extractor{api: api, log: log, pageLimit: pageLimit, logEvery: logEvery}
}

// Sessions fetches every session in the run window, half-day span by
// half-day span, each span paginated to exhaustion. Order follows the spans,
// so the result is chronological by window.
func (e *Extractor) Sessions(ctx context.Context, run window.Run, extraFilter string) (types.RowSet, error) {
	spans := window.HalfDays(run.Start, run.Stop)

	var out types.RowSet
	for _, span := range spans {
		filter, err := composeFilter(span.FilterClause(), extraFilter)
		if err != nil {
			return nil, err
		}
		e.log.Info().Str("filter", filter).Msg("fetching sessions window")

		for skip := 0; ; skip += e.pageLimit {
			page, err := e.api.Search(ctx, filter, skip, e.pageLimit)
			if err != nil {
				return nil, fmt.Errorf("searching sessions: %w", err)
			}
			out = append(out, page...)
			// A short page is the last page.
			if len(page) < e.pageLimit {
				break
			}
		}
	}

	e.log.Info().Int("sessions", len(out)).Msg("session window fetched")
	return out, nil
}

// composeFilter appends the operator-supplied extra filter to the window
// clause. The extra filter arrives URL-escaped from the command line and is
// joined with the upstream's multi-clause separator.
func composeFilter(base, extra string) (string, error) {
	if extra == "" {
		return base, nil
	}
	unescaped, err := url.QueryUnescape(extra)
	if err != nil {
		return "", fmt.Errorf("unescaping filter %q: %w", extra, err)
	}
	return base + "±" + unescaped, nil
}

// Enrich attaches one sub-resource to every eligible session. Each record
// first gets a nil placeholder so downstream shape is uniform; a failed
// detail fetch is logged and leaves the placeholder, never failing the run.
func (e *Extractor) Enrich(ctx context.Context, sessions types.RowSet, en Enrichment) error {
	for i, rec := range sessions {
		if _, ok := rec[en.Name]; !ok {
			rec[en.Name] = nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if en.Require != "" && !rec.Truthy(en.Require) {
			continue
		}

		id, ok := rec.ID()
		if !ok {
			e.log.Warn().Str("detail", en.Name).Interface("record", rec).
				Msg("session without id, skipping detail fetch")
			continue
		}

		detail, err := e.api.SessionDetail(ctx, id, en.Suffix)
		if err != nil {
			e.log.Warn().Err(err).Str("session", id).Str("detail", en.Name).
				Msg("detail fetch failed, continuing without it")
			continue
		}
		rec[en.Name] = detail

		if e.logEvery > 0 && (i+1)%e.logEvery == 0 {
			e.log.Info().Str("detail", en.Name).
				Int("done", i+1).Int("total", len(sessions)).Msg("enriching")
		}
	}
	return nil
}

// Dictionaries fetches every reference-data endpoint. Dictionary fetches are
// all-or-nothing: reference data is small and a partial set would corrupt
// joins downstream.
func (e *Extractor) Dictionaries(ctx context.Context) (map[string]types.RowSet, error) {
	out := make(map[string]types.RowSet, len(dictionaryEndpoints))
	for _, ep := range dictionaryEndpoints {
		rows, err := e.api.Dictionary(ctx, ep.path, ep.limit)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", ep.name, err)
		}
		e.log.Info().Str("dictionary", ep.name).Int("rows", len(rows)).Msg("dictionary fetched")
		out[ep.name] = types.RowSet(rows)
	}
	return out, nil
}
