package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/docmine/server/internal/store"
)

type fakeUpserter struct {
	calls []store.UpsertProductParams
	fail  map[string]error // sku -> error to return
}

func (f *fakeUpserter) Upsert(_ context.Context, _ uuid.UUID, p store.UpsertProductParams) error {
	if err, ok := f.fail[p.SKU]; ok {
		return err
	}
	f.calls = append(f.calls, p)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteCountsEveryRowOnce(t *testing.T) {
	src := "sku,name,description,active\n" +
		"A1,Widget,First widget,true\n" +
		",Nameless,No sku here,true\n" +
		"a1,Widget again,Lowercase sku,false\n"

	up := &fakeUpserter{}
	ex := New(up, discardLogger())
	res, err := ex.run(context.Background(), strings.NewReader(src), uuid.New(), nil)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if res.Total != 3 || res.Imported != 2 || res.Errors != 1 {
		t.Errorf("got total=%d imported=%d errors=%d, want 3/2/1", res.Total, res.Imported, res.Errors)
	}
	if res.Total != res.Imported+res.Errors {
		t.Errorf("total %d != imported %d + errors %d", res.Total, res.Imported, res.Errors)
	}
	if len(res.ErrorDetails) != 1 {
		t.Fatalf("ErrorDetails = %v, want 1 entry", res.ErrorDetails)
	}
	if res.ErrorDetails[0].Row != 2 || res.ErrorDetails[0].Error != "SKU is required" {
		t.Errorf("ErrorDetails[0] = %+v, want row 2 / SKU is required", res.ErrorDetails[0])
	}
}

func TestExecuteHeaderCaseInsensitive(t *testing.T) {
	src := "SKU,Name, Description ,ACTIVE\nB2,Gadget,Spare,true\n"

	up := &fakeUpserter{}
	ex := New(up, discardLogger())
	res, err := ex.run(context.Background(), strings.NewReader(src), uuid.New(), nil)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if res.Imported != 1 {
		t.Fatalf("Imported = %d, want 1", res.Imported)
	}
	got := up.calls[0]
	if got.SKU != "B2" || got.Name != "Gadget" || got.Description != "Spare" || !got.Active {
		t.Errorf("upserted %+v", got)
	}
}

func TestExecuteActiveParsing(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		active bool
	}{
		{"literal true", "sku,name,active\nX,Item,true\n", true},
		{"literal false", "sku,name,active\nX,Item,false\n", false},
		{"arbitrary value", "sku,name,active\nX,Item,yes\n", false},
		{"empty value", "sku,name,active\nX,Item,\n", false},
		{"column absent", "sku,name\nX,Item\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpserter{}
			ex := New(up, discardLogger())
			if _, err := ex.run(context.Background(), strings.NewReader(tt.src), uuid.New(), nil); err != nil {
				t.Fatalf("run() error = %v", err)
			}
			if len(up.calls) != 1 {
				t.Fatalf("upserts = %d, want 1", len(up.calls))
			}
			if up.calls[0].Active != tt.active {
				t.Errorf("Active = %v, want %v", up.calls[0].Active, tt.active)
			}
		})
	}
}

func TestExecuteUpsertFailureIsRowError(t *testing.T) {
	src := "sku,name\nGOOD,Fine\nBAD,Broken\nALSO,Fine\n"

	up := &fakeUpserter{fail: map[string]error{"BAD": errors.New("deadlock detected")}}
	ex := New(up, discardLogger())
	res, err := ex.run(context.Background(), strings.NewReader(src), uuid.New(), nil)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if res.Total != 3 || res.Imported != 2 || res.Errors != 1 {
		t.Errorf("got total=%d imported=%d errors=%d, want 3/2/1", res.Total, res.Imported, res.Errors)
	}
	if res.ErrorDetails[0].Row != 2 || res.ErrorDetails[0].Error != "deadlock detected" {
		t.Errorf("ErrorDetails[0] = %+v", res.ErrorDetails[0])
	}
}

func TestExecuteProgressEveryHundredRows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("sku,name\n")
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&sb, "SKU-%d,Item %d\n", i, i)
	}

	var reported []int
	up := &fakeUpserter{}
	ex := New(up, discardLogger())
	res, err := ex.run(context.Background(), strings.NewReader(sb.String()), uuid.New(), func(n int) {
		reported = append(reported, n)
	})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if res.Imported != 250 {
		t.Fatalf("Imported = %d, want 250", res.Imported)
	}
	if len(reported) != 2 || reported[0] != 100 || reported[1] != 200 {
		t.Errorf("progress calls = %v, want [100 200]", reported)
	}
}

func TestExecuteEmptyFile(t *testing.T) {
	up := &fakeUpserter{}
	ex := New(up, discardLogger())
	res, err := ex.run(context.Background(), strings.NewReader(""), uuid.New(), nil)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if res.Total != 0 || len(res.ErrorDetails) != 0 {
		t.Errorf("got %+v, want zero result", res)
	}
	if res.ErrorDetails == nil {
		t.Error("ErrorDetails is nil, want empty slice for JSON encoding")
	}
}

func TestExecuteMalformedStream(t *testing.T) {
	src := "sku,name\n\"unterminated,Item\n"
	up := &fakeUpserter{}
	ex := New(up, discardLogger())
	if _, err := ex.run(context.Background(), strings.NewReader(src), uuid.New(), nil); err == nil {
		t.Fatal("run() error = nil, want malformed stream error")
	}
}

func TestExecuteStripsBOMAndBadUTF8(t *testing.T) {
	src := "\xEF\xBB\xBFsku,name\nC3,Caf\xffe\n"
	up := &fakeUpserter{}
	ex := New(up, discardLogger())
	res, err := ex.run(context.Background(), strings.NewReader(src), uuid.New(), nil)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if res.Imported != 1 {
		t.Fatalf("Imported = %d, want 1", res.Imported)
	}
	if up.calls[0].SKU != "C3" {
		t.Errorf("SKU = %q, want C3 with BOM stripped", up.calls[0].SKU)
	}
	if up.calls[0].Name != "Caf?e" {
		t.Errorf("Name = %q, want invalid byte replaced", up.calls[0].Name)
	}
}

func TestExecuteDeletesSourceOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "import.csv")
	if err := os.WriteFile(path, []byte("sku,name\nD4,Doodad\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := &fakeUpserter{}
	ex := New(up, discardLogger())
	res, err := ex.Execute(context.Background(), path, uuid.New(), nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Imported != 1 {
		t.Errorf("Imported = %d, want 1", res.Imported)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("source file still exists after successful import")
	}
}

func TestExecuteMissingSource(t *testing.T) {
	ex := New(&fakeUpserter{}, discardLogger())
	if _, err := ex.Execute(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), uuid.New(), nil); err == nil {
		t.Fatal("Execute() error = nil, want open error")
	}
}
