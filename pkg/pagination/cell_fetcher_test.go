package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Sternrassler/gridscan/pkg/client"
	"github.com/Sternrassler/gridscan/pkg/geo"
	"github.com/Sternrassler/gridscan/pkg/ratelimit"
)

var testBBox = geo.BoundingBox{LatMin: 40, LatMax: 40.1, LngMin: -100, LngMax: -99.9}

// fakeFetcher serves scripted pages. Errors queued for a page are returned
// before the page itself is served; a sticky error is returned forever.
type fakeFetcher struct {
	totalPages int
	perPage    int
	errs       map[int][]error
	sticky     map[int]error
	calls      map[int]int
	order      []int
}

func newFakeFetcher(totalPages, perPage int) *fakeFetcher {
	return &fakeFetcher{
		totalPages: totalPages,
		perPage:    perPage,
		errs:       make(map[int][]error),
		sticky:     make(map[int]error),
		calls:      make(map[int]int),
	}
}

func (f *fakeFetcher) failPage(page int, errs ...error) {
	f.errs[page] = append(f.errs[page], errs...)
}

func (f *fakeFetcher) failAlways(page int, err error) {
	f.sticky[page] = err
}

func (f *fakeFetcher) FetchPage(_ context.Context, bbox geo.BoundingBox, page int) (client.PageResult, error) {
	f.calls[page]++
	f.order = append(f.order, page)

	if err := f.sticky[page]; err != nil {
		return client.PageResult{}, err
	}
	if errs := f.errs[page]; len(errs) > 0 {
		f.errs[page] = errs[1:]
		return client.PageResult{}, errs[0]
	}

	return client.PageResult{
		Records:    pageRecords(page, f.perPage),
		PageNumber: page,
		TotalPages: f.totalPages,
		URL:        fmt.Sprintf("http://search.test/?bbox=%s&page=%d", bbox.QueryString(), page),
	}, nil
}

func (f *fakeFetcher) totalCalls() int {
	return len(f.order)
}

func pageRecords(page, n int) []client.Record {
	out := make([]client.Record, n)
	for i := range out {
		out[i] = json.RawMessage(fmt.Sprintf(`{"id":"p%d-r%d"}`, page, i))
	}
	return out
}

func testConfig(attempts int) Config {
	return Config{
		Retry: client.RetryPolicy{MaxAttempts: attempts, Delay: time.Millisecond},
		Pacer: ratelimit.NewPacer(ratelimit.Delays{}),
	}
}

func recordIDs(records []client.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		var v struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(r, &v)
		ids[i] = v.ID
	}
	return ids
}

func TestFetch_AllPagesSucceed(t *testing.T) {
	fake := newFakeFetcher(4, 3)
	out := NewCellFetcher(fake, testConfig(3)).Fetch(context.Background(), testBBox)

	if out.Status != StatusComplete {
		t.Fatalf("Status = %s, want complete (err=%v)", out.Status, out.Err)
	}
	if fake.totalCalls() != 4 {
		t.Errorf("requests = %d, want 4", fake.totalCalls())
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4}, fake.order); diff != "" {
		t.Errorf("page order mismatch (-want +got):\n%s", diff)
	}

	var want []client.Record
	for p := 1; p <= 4; p++ {
		want = append(want, pageRecords(p, 3)...)
	}
	if diff := cmp.Diff(recordIDs(want), recordIDs(out.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if out.Pages != 4 || out.TotalPages != 4 {
		t.Errorf("Pages=%d TotalPages=%d, want 4/4", out.Pages, out.TotalPages)
	}
	if out.LastURL == "" || out.LastURL[len(out.LastURL)-1] != '4' {
		t.Errorf("LastURL = %q, want page 4 URL", out.LastURL)
	}
	if out.Err != nil {
		t.Errorf("Err = %v, want nil", out.Err)
	}
}

func TestFetch_SinglePage(t *testing.T) {
	fake := newFakeFetcher(1, 5)
	out := NewCellFetcher(fake, testConfig(3)).Fetch(context.Background(), testBBox)

	if !out.Complete() || out.Count() != 5 || fake.totalCalls() != 1 {
		t.Errorf("got status=%s count=%d calls=%d", out.Status, out.Count(), fake.totalCalls())
	}
}

func TestFetch_InvalidPageCountMeansOnePage(t *testing.T) {
	for _, declared := range []int{0, -2} {
		fake := newFakeFetcher(declared, 2)
		out := NewCellFetcher(fake, testConfig(3)).Fetch(context.Background(), testBBox)

		if fake.totalCalls() != 1 {
			t.Errorf("declared=%d: requests = %d, want 1", declared, fake.totalCalls())
		}
		if out.TotalPages != 1 || !out.Complete() {
			t.Errorf("declared=%d: TotalPages=%d status=%s", declared, out.TotalPages, out.Status)
		}
	}
}

func TestFetch_EmptySinglePage(t *testing.T) {
	fake := newFakeFetcher(1, 0)
	out := NewCellFetcher(fake, testConfig(3)).Fetch(context.Background(), testBBox)

	if !out.Complete() {
		t.Errorf("Status = %s, want complete", out.Status)
	}
	if out.Count() != 0 || fake.totalCalls() != 1 {
		t.Errorf("count=%d calls=%d, want 0/1", out.Count(), fake.totalCalls())
	}
}

func TestFetch_FatalOnMiddlePage(t *testing.T) {
	fake := newFakeFetcher(3, 2)
	fake.failAlways(2, &client.SearchError{Kind: client.KindMalformed, Message: "decode response"})

	out := NewCellFetcher(fake, testConfig(3)).Fetch(context.Background(), testBBox)

	if out.Status != StatusPartialAborted {
		t.Fatalf("Status = %s, want partial_aborted", out.Status)
	}
	if diff := cmp.Diff(recordIDs(pageRecords(1, 2)), recordIDs(out.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if fake.calls[2] != 1 {
		t.Errorf("page 2 requests = %d, want 1 (fatal errors are not retried)", fake.calls[2])
	}
	if fake.calls[3] != 0 {
		t.Errorf("page 3 requests = %d, want 0", fake.calls[3])
	}
	if client.KindOf(out.Err) != client.KindMalformed {
		t.Errorf("Err kind = %s, want malformed", client.KindOf(out.Err))
	}
	if out.Pages != 1 || out.TotalPages != 3 {
		t.Errorf("Pages=%d TotalPages=%d, want 1/3", out.Pages, out.TotalPages)
	}
}

func TestFetch_TransientExhaustsOnFirstPage(t *testing.T) {
	fake := newFakeFetcher(2, 2)
	fake.failAlways(1, &client.SearchError{Kind: client.KindTransport, Message: "connection failed"})

	out := NewCellFetcher(fake, testConfig(3)).Fetch(context.Background(), testBBox)

	if out.Status != StatusPartialAborted {
		t.Fatalf("Status = %s, want partial_aborted", out.Status)
	}
	if out.Count() != 0 {
		t.Errorf("records = %d, want 0", out.Count())
	}
	if fake.calls[1] != 3 {
		t.Errorf("page 1 requests = %d, want 3", fake.calls[1])
	}
	if fake.calls[2] != 0 {
		t.Errorf("page 2 requests = %d, want 0", fake.calls[2])
	}
	if !errors.Is(out.Err, client.ErrRetryExhausted) {
		t.Errorf("Err = %v, want ErrRetryExhausted", out.Err)
	}
	if out.TotalPages != 0 {
		t.Errorf("TotalPages = %d, want 0", out.TotalPages)
	}
}

func TestFetch_RecoversWithinRetryBudget(t *testing.T) {
	fake := newFakeFetcher(2, 1)
	transient := &client.SearchError{Kind: client.KindHTTP, StatusCode: 502}
	fake.failPage(2, transient)

	out := NewCellFetcher(fake, testConfig(3)).Fetch(context.Background(), testBBox)

	if !out.Complete() {
		t.Fatalf("Status = %s, want complete (err=%v)", out.Status, out.Err)
	}
	if fake.calls[2] != 2 {
		t.Errorf("page 2 requests = %d, want 2", fake.calls[2])
	}
}

func TestFetch_UnknownErrorIsFatal(t *testing.T) {
	fake := newFakeFetcher(1, 1)
	fake.failAlways(1, errors.New("boom"))

	out := NewCellFetcher(fake, testConfig(3)).Fetch(context.Background(), testBBox)

	if out.Status != StatusPartialAborted || fake.calls[1] != 1 {
		t.Errorf("status=%s calls=%d, want partial_aborted/1", out.Status, fake.calls[1])
	}
}

func TestFetch_InvalidBBoxNotRequested(t *testing.T) {
	fake := newFakeFetcher(1, 1)
	bad := geo.BoundingBox{LatMin: 1, LatMax: 1, LngMin: 0, LngMax: 1}

	out := NewCellFetcher(fake, testConfig(3)).Fetch(context.Background(), bad)

	if !errors.Is(out.Err, ErrInvalidBBox) {
		t.Errorf("Err = %v, want ErrInvalidBBox", out.Err)
	}
	if fake.totalCalls() != 0 {
		t.Errorf("requests = %d, want 0", fake.totalCalls())
	}
}

func TestFetch_InterPageWait(t *testing.T) {
	var waits []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	cfg := testConfig(1)
	cfg.Pacer = ratelimit.NewPacer(ratelimit.Delays{InterPage: 250 * time.Millisecond}, ratelimit.WithSleep(sleep))

	NewCellFetcher(newFakeFetcher(3, 1), cfg).Fetch(context.Background(), testBBox)

	if diff := cmp.Diff([]time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, waits); diff != "" {
		t.Errorf("waits mismatch (-want +got):\n%s", diff)
	}
}

func TestFetch_CancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleep := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	cfg := testConfig(1)
	cfg.Pacer = ratelimit.NewPacer(ratelimit.Delays{InterPage: time.Second}, ratelimit.WithSleep(sleep))
	fake := newFakeFetcher(3, 1)

	out := NewCellFetcher(fake, cfg).Fetch(ctx, testBBox)

	if out.Status != StatusPartialAborted || out.Count() != 1 {
		t.Errorf("status=%s count=%d, want partial_aborted/1", out.Status, out.Count())
	}
	if !errors.Is(out.Err, client.ErrContextCancelled) {
		t.Errorf("Err = %v, want ErrContextCancelled", out.Err)
	}
	if fake.calls[2] != 0 {
		t.Error("page 2 should not be requested after cancellation")
	}
}

func TestFetch_PageHook(t *testing.T) {
	var events []PageEvent
	f := NewCellFetcher(newFakeFetcher(2, 3), testConfig(1), WithPageHook(func(e PageEvent) {
		events = append(events, e)
	}))

	f.Fetch(context.Background(), testBBox)

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	for i, e := range events {
		if e.Page != i+1 || e.TotalPages != 2 || e.Records != 3 || e.BBox != testBBox {
			t.Errorf("event %d = %+v", i, e)
		}
	}
}

func TestFetch_Idempotent(t *testing.T) {
	f := NewCellFetcher(newFakeFetcher(3, 4), testConfig(1))

	first := f.Fetch(context.Background(), testBBox)
	second := f.Fetch(context.Background(), testBBox)

	if diff := cmp.Diff(recordIDs(first.Records), recordIDs(second.Records)); diff != "" {
		t.Errorf("repeated fetch differs (-first +second):\n%s", diff)
	}
}
