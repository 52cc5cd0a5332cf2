package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/intake/internal/classify"
	"github.com/linnemanlabs/intake/internal/taxonomy"
	"github.com/linnemanlabs/intake/internal/triage"
)

var _ triage.Notifier = (*Notifier)(nil)

func referralRecord() *triage.Record {
	s := triage.NewSession()
	s.OriginalQuestion = "Can I take DrugX while pregnant?"
	s.Summary = "Customer asks whether DrugX is safe during pregnancy."
	s.SummaryDecision = triage.SummaryAccepted
	s.LastClassification = &classify.Result{Category: taxonomy.Medical, Type: "Safety", Confidence: 0.93}
	s.Phase = triage.PhaseResolved
	s.Outcome = &triage.Outcome{Kind: triage.OutcomeMedicalReferral, Type: "Safety", Link: "https://example.com/mi"}
	return &triage.Record{
		ID:        "01JN123",
		Session:   s,
		CreatedAt: time.Date(2026, 2, 26, 14, 20, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}
}

func blockText(t *testing.T, block any) string {
	t.Helper()
	m, ok := block.(map[string]any)
	if !ok {
		t.Fatalf("block is %T", block)
	}
	text, _ := m["text"].(map[string]any)
	s, _ := text["text"].(string)
	return s
}

func TestSend_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	if !n.Enabled() {
		t.Fatal("expected notifier to be enabled")
	}
	if err := n.Send(context.Background(), referralRecord()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, fields, divider, question, clarifications, context = 6 blocks
	if len(blocks) != 6 {
		t.Fatalf("blocks count = %d, want 6", len(blocks))
	}

	if h := blockText(t, blocks[0]); !strings.Contains(h, "Medical referral") {
		t.Errorf("header = %q", h)
	}
	if q := blockText(t, blocks[3]); !strings.Contains(q, "while pregnant") || !strings.Contains(q, "*Summary*") {
		t.Errorf("question block = %q", q)
	}

	fields := blocks[1].(map[string]any)["fields"].([]any)
	first := fields[0].(map[string]any)["text"].(string)
	if !strings.Contains(first, "Medical / Safety") {
		t.Errorf("classification field = %q", first)
	}

	ctxText := blocks[5].(map[string]any)["elements"].([]any)[0].(map[string]any)["text"].(string)
	if !strings.Contains(ctxText, "01JN123") || !strings.Contains(ctxText, "2026-02-26 14:23 UTC") {
		t.Errorf("context = %q", ctxText)
	}
}

func TestBuildMessage_ExhaustedHeader(t *testing.T) {
	t.Parallel()

	r := referralRecord()
	r.Session.Outcome.Kind = triage.OutcomeClarificationExhausted
	r.Session.Clarifications = []string{"it is for my sister", "she is 30"}
	r.Session.AttemptsUsed = 2

	blocks := buildMessage(r)["blocks"].([]map[string]any)
	header := blocks[0]["text"].(map[string]any)["text"].(string)
	if !strings.Contains(header, "Clarification exhausted") {
		t.Errorf("header = %q", header)
	}
	clar := blocks[4]["text"].(map[string]any)["text"].(string)
	if !strings.Contains(clar, "1. it is for my sister") || !strings.Contains(clar, "2. she is 30") {
		t.Errorf("clarifications = %q", clar)
	}
}

func TestSend_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("", log.Nop())
	if n.Enabled() {
		t.Error("expected notifier to be disabled")
	}
	if err := n.Send(context.Background(), &triage.Record{}); err != nil {
		t.Fatalf("Send with empty URL should be no-op, got: %v", err)
	}
}

func TestSend_TruncatesLongQuestion(t *testing.T) {
	t.Parallel()

	r := referralRecord()
	r.Session.OriginalQuestion = strings.Repeat("x", 5000)
	r.Session.Summary = ""

	q := buildMessage(r)["blocks"].([]map[string]any)[3]["text"].(map[string]any)["text"].(string)
	if len(q) > maxTextLen+len("*Question*\n> ") {
		t.Errorf("question text length = %d", len(q))
	}
	if !strings.HasSuffix(q, "...") {
		t.Error("expected truncated question to end with ...")
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":         "> _(empty)_",
		"one":      "> one",
		"one\ntwo": "> one\n> two",
		"a\n\nb\n": "> a\n> \n> b\n> ",
	}

	for in, want := range tests {
		if got := quote(in); got != want {
			t.Errorf("quote(%q) = %q, want %q", in, got, want)
		}
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("Can I take this?", "Customer asks about dosing.", "more detail")
	f.Add("", "", "")
	f.Add("<@U123> mention", "*bold* _italic_ ~strike~", "```code```")
	f.Add("q\x00\x01\x02", "sum\nline", "clar\ttab")
	f.Add(strings.Repeat("A", 5000), strings.Repeat("x", 10000), strings.Repeat("c", 3000))

	f.Fuzz(func(t *testing.T, question, summary, clarification string) {
		r := referralRecord()
		r.Session.OriginalQuestion = question
		r.Session.Summary = summary
		r.Session.Clarifications = []string{clarification}

		// Must not panic
		msg := buildMessage(r)

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}
		blocks, ok := decoded["blocks"].([]any)
		if !ok || len(blocks) != 6 {
			t.Fatalf("blocks = %v", decoded["blocks"])
		}
	})
}

func TestSend_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	err := n.Send(context.Background(), referralRecord())
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}
