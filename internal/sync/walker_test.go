package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonAks/TaskFromTal/internal/store"
	pkgsync "github.com/AntonAks/TaskFromTal/internal/sync"
	"github.com/AntonAks/TaskFromTal/internal/upstream"
)

func ptr(s string) *string { return &s }

// fakeFetcher serves pages keyed by the requested page token
type fakeFetcher struct {
	pages           map[string]*upstream.Page
	errs            map[string]error
	requestedTokens []string
}

func (f *fakeFetcher) FetchPage(_ context.Context, _ int, pageToken string) (*upstream.Page, error) {
	f.requestedTokens = append(f.requestedTokens, pageToken)
	if err, ok := f.errs[pageToken]; ok {
		return nil, err
	}
	page, ok := f.pages[pageToken]
	if !ok {
		return &upstream.Page{}, nil
	}
	return page, nil
}

// fakeWriter keeps inserted studies in memory and dedups like the real store
type fakeWriter struct {
	existing    map[string]struct{}
	inserted    [][]store.Study
	filterErr   error
	insertErr   error
	filterCalls int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{existing: make(map[string]struct{})}
}

func (f *fakeWriter) FilterExistingIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	f.filterCalls++
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := f.existing[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (f *fakeWriter) BulkInsert(_ context.Context, studies []store.Study) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, studies)
	for _, s := range studies {
		f.existing[s.ID] = struct{}{}
	}
	return int64(len(studies)), nil
}

func study(id string) upstream.Study {
	return upstream.Study{ID: id, Title: ptr("title " + id)}
}

func TestWalker_PaginationContinuation(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]*upstream.Page{
			"": {
				Studies:       []upstream.Study{study("NCT001"), study("NCT002")},
				NextPageToken: "t1",
			},
			"t1": {
				Studies:       []upstream.Study{study("NCT003")},
				NextPageToken: "t2",
			},
			"t2": {
				Studies:       []upstream.Study{study("NCT004")},
				NextPageToken: "",
			},
		},
	}
	writer := newFakeWriter()

	walker, err := pkgsync.NewWalker(fetcher, writer, 100, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, walker.RunOnce(ctx))
	require.NoError(t, walker.RunOnce(ctx))
	require.NoError(t, walker.RunOnce(ctx))

	// Each page was requested with the token from the previous response
	assert.Equal(t, []string{"", "t1", "t2"}, fetcher.requestedTokens)

	// Every id ingested exactly once
	assert.Len(t, writer.existing, 4)
	for _, id := range []string{"NCT001", "NCT002", "NCT003", "NCT004"} {
		assert.Contains(t, writer.existing, id)
	}

	// The terminal page resets the token: the next iteration starts over
	require.NoError(t, walker.RunOnce(ctx))
	assert.Equal(t, "", fetcher.requestedTokens[3])

	// Re-walking the first page inserts nothing new
	assert.Empty(t, writer.inserted[3])
}

func TestWalker_IdempotentIngestion(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]*upstream.Page{
			"": {
				Studies:       []upstream.Study{study("NCT001"), study("NCT002"), study("NCT003")},
				NextPageToken: "",
			},
		},
	}
	writer := newFakeWriter()
	writer.existing["NCT001"] = struct{}{}
	writer.existing["NCT003"] = struct{}{}

	walker, err := pkgsync.NewWalker(fetcher, writer, 100, time.Minute)
	require.NoError(t, err)

	require.NoError(t, walker.RunOnce(context.Background()))

	require.Len(t, writer.inserted, 1)
	require.Len(t, writer.inserted[0], 1)
	assert.Equal(t, "NCT002", writer.inserted[0][0].ID)
}

func TestWalker_FetchFailureDoesNotAdvanceToken(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]*upstream.Page{
			"": {
				Studies:       []upstream.Study{study("NCT001")},
				NextPageToken: "t1",
			},
		},
		errs: map[string]error{
			"t1": errors.New("upstream unavailable"),
		},
	}
	writer := newFakeWriter()

	walker, err := pkgsync.NewWalker(fetcher, writer, 100, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, walker.RunOnce(ctx))
	require.Error(t, walker.RunOnce(ctx))

	// The failed position is retried, not skipped
	delete(fetcher.errs, "t1")
	fetcher.pages["t1"] = &upstream.Page{
		Studies:       []upstream.Study{study("NCT002")},
		NextPageToken: "",
	}
	require.NoError(t, walker.RunOnce(ctx))

	assert.Equal(t, "t1", fetcher.requestedTokens[len(fetcher.requestedTokens)-1])
	assert.Contains(t, writer.existing, "NCT002")
}

func TestWalker_StorageFailureDoesNotAdvanceToken(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]*upstream.Page{
			"": {
				Studies:       []upstream.Study{study("NCT001")},
				NextPageToken: "t1",
			},
		},
	}
	writer := newFakeWriter()
	writer.insertErr = errors.New("database unavailable")

	walker, err := pkgsync.NewWalker(fetcher, writer, 100, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	require.Error(t, walker.RunOnce(ctx))

	// Recovery retries the same page and only then advances
	writer.insertErr = nil
	require.NoError(t, walker.RunOnce(ctx))

	assert.Equal(t, []string{"", ""}, fetcher.requestedTokens)
	assert.Contains(t, writer.existing, "NCT001")
}

func TestWalker_EmptyPageSkipsStorage(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]*upstream.Page{
			"": {Studies: nil, NextPageToken: ""},
		},
	}
	writer := newFakeWriter()

	walker, err := pkgsync.NewWalker(fetcher, writer, 100, time.Minute)
	require.NoError(t, err)

	require.NoError(t, walker.RunOnce(context.Background()))

	assert.Zero(t, writer.filterCalls)
	assert.Empty(t, writer.inserted)
}

func TestWalker_StartStop(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]*upstream.Page{
			"": {Studies: []upstream.Study{study("NCT001")}, NextPageToken: ""},
		},
	}
	writer := newFakeWriter()

	walker, err := pkgsync.NewWalker(fetcher, writer, 100, 10*time.Millisecond)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- walker.Start(context.Background())
	}()

	// Let at least one iteration complete
	require.Eventually(t, func() bool {
		return len(writer.existing) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, walker.Stop())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("walker did not stop")
	}
}

func TestNewWalker_Validation(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	writer := newFakeWriter()

	tests := []struct {
		name     string
		fetcher  pkgsync.PageFetcher
		writer   pkgsync.StudyWriter
		pageSize int
		interval time.Duration
	}{
		{name: "nil fetcher", writer: writer, pageSize: 10, interval: time.Second},
		{name: "nil writer", fetcher: fetcher, pageSize: 10, interval: time.Second},
		{name: "zero page size", fetcher: fetcher, writer: writer, interval: time.Second},
		{name: "zero interval", fetcher: fetcher, writer: writer, pageSize: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := pkgsync.NewWalker(tt.fetcher, tt.writer, tt.pageSize, tt.interval)
			require.Error(t, err)
		})
	}
}
