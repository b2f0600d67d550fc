package docparse

import (
	"reflect"
	"strings"
	"testing"
)

func TestEmails(t *testing.T) {
	text := "Reach ops@example.com or billing@corp.io. Again: ops@example.com."
	got := Emails(text)
	want := []string{"ops@example.com", "billing@corp.io"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Emails() = %v, want %v", got, want)
	}
}

func TestEmailsNone(t *testing.T) {
	got := Emails("no contact details here")
	if got == nil || len(got) != 0 {
		t.Errorf("Emails() = %v, want empty non-nil slice", got)
	}
}

func TestPhones(t *testing.T) {
	text := "Call 555-867-5309 or (212) 555-0100."
	got := Phones(text)
	if len(got) == 0 {
		t.Fatal("Phones() found nothing")
	}
	joined := strings.Join(got, " ")
	if !strings.Contains(joined, "555-867-5309") {
		t.Errorf("Phones() = %v, missing 555-867-5309", got)
	}
}

func TestDates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"slash numeric", "due 12/31/2024 sharp", "12/31/2024"},
		{"iso", "released 2024-06-01 for all", "2024-06-01"},
		{"month name", "signed January 5, 2024 by both", "January 5, 2024"},
		{"day first", "on 5 Mar 2024 we shipped", "5 Mar 2024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dates(tt.text)
			found := false
			for _, d := range got {
				if d == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("Dates(%q) = %v, want to include %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestURLs(t *testing.T) {
	text := "See https://example.com/docs?page=2 and http://internal.local:8080/status."
	got := URLs(text)
	if len(got) != 2 {
		t.Fatalf("URLs() = %v, want 2 entries", got)
	}
	if got[0] != "https://example.com/docs?page=2" {
		t.Errorf("URLs()[0] = %q", got[0])
	}
}

func TestKeywords(t *testing.T) {
	text := strings.Repeat("inventory ", 5) + strings.Repeat("warehouse ", 3) + "the and with shipment"
	got := Keywords(text)
	if len(got) < 3 {
		t.Fatalf("Keywords() = %v, want at least 3", got)
	}
	if got[0] != "inventory" || got[1] != "warehouse" {
		t.Errorf("Keywords() = %v, want inventory then warehouse first", got)
	}
	for _, kw := range got {
		if kw == "the" || kw == "and" || kw == "with" {
			t.Errorf("Keywords() includes stop word %q", kw)
		}
	}
}

func TestKeywordsCapped(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString(strings.Repeat("keyword"+string(rune('a'+i))+" ", i+1))
	}
	got := Keywords(sb.String())
	if len(got) != 20 {
		t.Errorf("Keywords() returned %d entries, want 20", len(got))
	}
}

func TestAnalyze(t *testing.T) {
	text := "Invoice from billing@corp.io\n\nDue 12/31/2024.\n\nDetails at https://corp.io/invoices."
	got, err := Analyze(text, "txt")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !got.Metadata.HasContactInfo {
		t.Error("HasContactInfo = false, want true")
	}
	if !got.Metadata.HasDates {
		t.Error("HasDates = false, want true")
	}
	if !got.Metadata.HasURLs {
		t.Error("HasURLs = false, want true")
	}
	if got.ExtractedData.ParagraphCount != 3 {
		t.Errorf("ParagraphCount = %d, want 3", got.ExtractedData.ParagraphCount)
	}
	if got.ExtractedData.WordCount == 0 {
		t.Error("WordCount = 0, want > 0")
	}
	if got.Metadata.FileType != "txt" {
		t.Errorf("FileType = %q, want txt", got.Metadata.FileType)
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	if _, err := Analyze("", "txt"); err != ErrEmptyContent {
		t.Errorf("Analyze(\"\") error = %v, want ErrEmptyContent", err)
	}
}

func TestSupportedType(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"application/pdf", true},
		{"pdf", true},
		{".txt", true},
		{"text/plain", true},
		{"application/msword", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := SupportedType(tt.in); got != tt.want {
			t.Errorf("SupportedType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
