package dedup_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/dedup"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/fingerprint"
)

func TestMarkSeen_ThenIsDuplicate(t *testing.T) {
	d := dedup.New(fingerprint.Current)
	record := etl.Record{"id": 1, "status": "completed"}

	require.False(t, d.IsDuplicate(record))
	fp := d.MarkSeen(record)
	require.Len(t, fp, 64)
	require.True(t, d.IsDuplicate(record))
}

func TestIsDuplicate_DoesNotMutate(t *testing.T) {
	d := dedup.New(fingerprint.Current)
	record := etl.Record{"id": 1}

	require.False(t, d.IsDuplicate(record))
	require.False(t, d.IsDuplicate(record))
	require.Zero(t, d.SeenCount())
}

func TestProcessRecord(t *testing.T) {
	d := dedup.New(fingerprint.Current)
	record := etl.Record{"id": 1}

	isNew, fp := d.ProcessRecord(record)
	require.True(t, isNew)
	require.NotEmpty(t, fp)

	isNew, fp2 := d.ProcessRecord(record)
	require.False(t, isNew)
	require.Equal(t, fp, fp2)
}

func TestProcessRecord_Concurrent(t *testing.T) {
	d := dedup.New(fingerprint.Current)
	record := etl.Record{"id": 1}

	var news atomic.Int64
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if isNew, _ := d.ProcessRecord(record); isNew {
				news.Add(1)
			}
		}()
	}
	wg.Wait()

	// Exactly one goroutine may observe the record as new.
	require.Equal(t, int64(1), news.Load())
}

func TestBatch_DropsLaterDuplicates(t *testing.T) {
	d := dedup.New(fingerprint.Current)
	a := etl.Record{"id": 1}
	b := etl.Record{"id": 2}

	unique := d.Batch([]etl.Record{a, b, a.Clone()})

	require.Len(t, unique, 2)
	require.Equal(t, a, unique[0])
	require.Equal(t, b, unique[1])
	require.Equal(t, 2, d.SeenCount())
}

func TestBatch_SingleDuplicatePair(t *testing.T) {
	d := dedup.New(fingerprint.Legacy)
	r := etl.Record{"id": 1}

	require.Len(t, d.Batch([]etl.Record{r, r}), 1)
}

func TestBatch_StateSpansBatches(t *testing.T) {
	d := dedup.New(fingerprint.Current)
	r := etl.Record{"id": 1}

	require.Len(t, d.Batch([]etl.Record{r}), 1)
	require.Empty(t, d.Batch([]etl.Record{r}))
}

func TestClear(t *testing.T) {
	d := dedup.New(fingerprint.Current)
	r := etl.Record{"id": 1}

	d.MarkSeen(r)
	require.Equal(t, 1, d.SeenCount())

	d.Clear()
	require.Zero(t, d.SeenCount())
	require.False(t, d.IsDuplicate(r))
}

func TestKeyOrderDoesNotSplitIdentity(t *testing.T) {
	d := dedup.New(fingerprint.Current)

	d.MarkSeen(etl.Record{"a": 1, "b": "x"})
	require.True(t, d.IsDuplicate(etl.Record{"b": "x", "a": 1}))
}
