// Package pagination walks all pages of one bbox query sequentially.
//
// The search API declares its page count in meta.page-count of the first
// response. The fetcher reads it, then requests the remaining pages in
// ascending order with a fixed courtesy wait between them.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig()
//	fetcher := pagination.NewCellFetcher(searchClient, cfg)
//	outcome := fetcher.Fetch(ctx, bbox)
//	if outcome.Status == pagination.StatusPartialAborted {
//		log.Warn().Err(outcome.Err).Int("records", outcome.Count()).Msg("bbox truncated")
//	}
//
// The cell fetcher:
//   - Applies the retry policy to every page request
//   - Treats an absent or invalid page count as exactly one page
//   - Stops at the first page that fails for good and keeps what it has
//   - Never returns an error; failures are reported in the outcome
package pagination
