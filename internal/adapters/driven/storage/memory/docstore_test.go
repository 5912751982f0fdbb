package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/crashstore/internal/core/domain"
)

func crashBody(id, product, version string, processed time.Time) map[string]any {
	return map[string]any{
		"crash_id": id,
		"processed_crash": map[string]any{
			"product":        product,
			"version":        version,
			"date_processed": processed,
		},
	}
}

func TestNewDocumentStore(t *testing.T) {
	store := NewDocumentStore()
	require.NotNil(t, store)
	assert.NotNil(t, store.indices)
	assert.NotNil(t, store.docs)
}

func TestDocumentStore_CreateIndex_Idempotent(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	require.NoError(t, store.CreateIndex(ctx, "socorro201501", domain.IndexSettings{"a": 1}))
	require.NoError(t, store.CreateIndex(ctx, "socorro201501", domain.IndexSettings{"a": 2}))

	assert.True(t, store.HasIndex("socorro201501"))
	assert.Equal(t, 2, store.CreateCalls())
	assert.Equal(t, 1, store.indices["socorro201501"]["a"])
}

func TestDocumentStore_CreateIndex_Error(t *testing.T) {
	store := NewDocumentStore()
	store.SetCreateError(errors.New("mapping rejected"))

	err := store.CreateIndex(context.Background(), "idx", nil)
	require.Error(t, err)
	assert.False(t, store.HasIndex("idx"))
}

func TestConnection_Index_UpsertByID(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	conn, err := store.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	now := time.Date(2015, 1, 1, 10, 0, 0, 0, time.UTC)
	_, err = conn.Index(ctx, "idx", "crash_reports", "c1", crashBody("c1", "Firefox", "1.0", now))
	require.NoError(t, err)
	_, err = conn.Index(ctx, "idx", "crash_reports", "c1", crashBody("c1", "Firefox", "2.0", now))
	require.NoError(t, err)

	docs := store.Documents("idx")
	require.Len(t, docs, 1)
	version, _ := domain.LookupPath(docs[0].Source, "processed_crash.version")
	assert.Equal(t, "2.0", version)
}

func TestConnection_Index_AssignsID(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	conn, _ := store.Connect(ctx)

	id1, err := conn.Index(ctx, "idx", "correlations", "", map[string]any{"n": 1})
	require.NoError(t, err)
	id2, err := conn.Index(ctx, "idx", "correlations", "", map[string]any{"n": 1})
	require.NoError(t, err)

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
	assert.Len(t, store.Documents("idx"), 2)
}

func TestConnection_Index_Error(t *testing.T) {
	store := NewDocumentStore()
	store.SetIndexError(domain.ErrStoreUnavailable)
	conn, _ := store.Connect(context.Background())

	_, err := conn.Index(context.Background(), "idx", "t", "id", map[string]any{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestConnection_Bulk(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	conn, _ := store.Connect(ctx)

	err := conn.Bulk(ctx, []domain.BulkAction{
		{Index: "a", DocType: "t", ID: "1", Source: map[string]any{"x": 1}},
		{Index: "b", DocType: "t", ID: "2", Source: map[string]any{"x": 2}},
	})
	require.NoError(t, err)
	assert.Len(t, store.Documents("a"), 1)
	assert.Len(t, store.Documents("b"), 1)
	assert.Equal(t, 1, store.BulkCalls())

	store.SetBulkError(errors.New("rejected"))
	assert.Error(t, conn.Bulk(ctx, []domain.BulkAction{{Index: "a", ID: "3", Source: map[string]any{}}}))
	assert.Equal(t, 2, store.BulkCalls())
}

func TestConnection_Scroll_FiltersAndPages(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	conn, _ := store.Connect(ctx)

	day := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, body := range []map[string]any{
		crashBody("in-1", "Firefox", "43.0.1", day.Add(time.Hour)),
		crashBody("other-product", "Thunderbird", "43.0.1", day.Add(time.Hour)),
		crashBody("in-2", "firefox", "43.0.1", day.Add(2*time.Hour)),
		crashBody("too-late", "Firefox", "43.0.1", day.Add(48*time.Hour)),
		crashBody("other-version", "Firefox", "42.0", day.Add(time.Hour)),
	} {
		_, err := conn.Index(ctx, "idx", "crash_reports", body["crash_id"].(string), body)
		require.NoError(t, err, "doc %d", i)
	}

	sc, err := conn.Scroll(ctx, domain.SearchRequest{
		Index:   "idx",
		DocType: "crash_reports",
		Query: domain.Query{
			Ranges: []domain.RangeFilter{{Field: "processed_crash.date_processed", GTE: day, LTE: day.Add(24 * time.Hour)}},
			Terms: []domain.TermsFilter{
				{Field: "processed_crash.product", Values: []string{"FIREFOX"}},
				{Field: "processed_crash.version", Values: []string{"43.0.1"}},
			},
		},
		Fields:   []string{"crash_id"},
		PageSize: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.OpenScrolls())

	var ids []string
	for {
		page, err := sc.Next(ctx)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		require.Len(t, page, 1)
		assert.Equal(t, map[string]any{"crash_id": page[0].ID}, page[0].Source)
		ids = append(ids, page[0].Source["crash_id"].(string))
	}
	assert.Equal(t, []string{"in-1", "in-2"}, ids)

	require.NoError(t, sc.Close())
	require.NoError(t, sc.Close())
	assert.Equal(t, 0, store.OpenScrolls())
}

func TestProject_NestedFields(t *testing.T) {
	source := map[string]any{
		"crash_id": "c1",
		"processed_crash": map[string]any{
			"product": "Firefox",
			"json_dump": map[string]any{
				"big": true,
			},
		},
	}

	got := project(source, []string{"processed_crash.product", "missing.field"})

	assert.Equal(t, map[string]any{
		"processed_crash": map[string]any{"product": "Firefox"},
	}, got)
}
