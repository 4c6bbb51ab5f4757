package export

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/repositories"
	"github.com/desertthunder/musicfp/internal/shared"
)

type pagedSource struct {
	records []models.FingerprintRecord
}

func (s *pagedSource) List(ctx context.Context, opts repositories.ListOptions) ([]models.FingerprintRecord, error) {
	if opts.Offset >= len(s.records) {
		return nil, nil
	}
	end := min(len(s.records), opts.Offset+opts.Limit)
	return s.records[opts.Offset:end], nil
}

func sourceOf(n int) *pagedSource {
	src := &pagedSource{}
	for i := range n {
		src.records = append(src.records, models.FingerprintRecord{CatalogID: string(rune('a' + i)), Path: "x/" + string(rune('a'+i)) + ".mp3"})
	}
	return src
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("counts inserted and skipped per batch", func(t *testing.T) {
		e := newExporter(nil, shared.ExportConfig{BatchSize: 2}, shared.NewLogger(io.Discard))
		e.write = func(ctx context.Context, records []models.FingerprintRecord) (int, error) {
			return len(records) - 1, nil
		}

		var calls int
		res, err := e.Export(ctx, sourceOf(5), "", func(Result) { calls++ })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Read != 5 || res.Inserted != 2 || res.Skipped != 3 || res.Failed != 0 {
			t.Errorf("unexpected result %+v", res)
		}
		if calls != 3 {
			t.Errorf("expected progress after each of 3 batches, got %d", calls)
		}
	})

	t.Run("rejected batch is failed, not skipped", func(t *testing.T) {
		e := newExporter(nil, shared.ExportConfig{BatchSize: 2}, shared.NewLogger(io.Discard))
		batches := 0
		e.write = func(ctx context.Context, records []models.FingerprintRecord) (int, error) {
			batches++
			if batches == 2 {
				return 0, errors.New("connection reset")
			}
			return len(records), nil
		}

		res, err := e.Export(ctx, sourceOf(6), "", nil)
		if err == nil {
			t.Fatal("expected insert error")
		}
		if res.Read != 4 || res.Inserted != 2 || res.Skipped != 0 || res.Failed != 2 {
			t.Errorf("unexpected result %+v", res)
		}
	})
}

func TestSQL(t *testing.T) {
	e := newExporter(nil, shared.ExportConfig{Table: "fp\"rints"}, shared.NewLogger(io.Discard))

	if e.table != `"fp""rints"` {
		t.Errorf("table identifier not sanitized: %s", e.table)
	}
	if e.batchSize != defaultBatchSize {
		t.Errorf("expected default batch size, got %d", e.batchSize)
	}

	create := createTableSQL(e.table)
	for _, want := range []string{"CREATE TABLE IF NOT EXISTS " + e.table, "soid        TEXT PRIMARY KEY", "INTEGER[]"} {
		if !strings.Contains(create, want) {
			t.Errorf("create statement missing %q", want)
		}
	}

	insert := insertSQL(e.table)
	if !strings.Contains(insert, "ON CONFLICT DO NOTHING") {
		t.Error("insert must skip existing rows")
	}
	if strings.Count(insert, "$") != 8 {
		t.Errorf("expected 8 placeholders, got %d", strings.Count(insert, "$"))
	}
}

func TestNewExporterDefaults(t *testing.T) {
	e := newExporter(nil, shared.ExportConfig{BatchSize: 50}, shared.NewLogger(io.Discard))
	if e.table != `"fingerprints"` || e.batchSize != 50 {
		t.Errorf("unexpected exporter %+v", e)
	}
}

func TestSignedPoints(t *testing.T) {
	got := signedPoints([]uint32{0, 1, 0xFFFFFFFF, 0x80000000})
	want := []int32{0, 1, -1, -2147483648}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	if _, err := Open(ctx, shared.ExportConfig{}, logger); !errors.Is(err, shared.ErrMissingConfig) {
		t.Errorf("expected ErrMissingConfig, got %v", err)
	}
	if _, err := Open(ctx, shared.ExportConfig{DSN: "postgres://localhost:notaport/db"}, logger); !errors.Is(err, shared.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
