package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"
)

type fakeModels struct {
	text     string
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestGeminiClassifierDecodes(t *testing.T) {
	fm := &fakeModels{text: "```json\n" + `{"type":"installment","intentLabel":"Parcelamento","transaction":{"amount":150,"merchant":"TV","direction":"outflow","totalInstallments":10},"response":"ok"}` + "\n```"}
	g := newGeminiClassifier(fm, "")

	res, err := g.Classify(context.Background(), Request{
		Text:    "comprei uma TV em 10x de 150",
		Context: "USUÁRIO: Ana.",
		Image:   &Image{Data: []byte{0xff, 0xd8}},
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Type != Installment || res.Transaction == nil || res.Transaction.Amount != 150 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if *res.Transaction.TotalInstallments != 10 {
		t.Fatalf("total installments = %d", *res.Transaction.TotalInstallments)
	}
	if fm.model != DefaultModel {
		t.Errorf("model = %q", fm.model)
	}
	parts := fm.contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "image/jpeg" {
		t.Fatalf("expected inline image part, got %+v", parts)
	}
	if !strings.Contains(parts[0].Text, "comprei uma TV") || !strings.Contains(parts[0].Text, "USUÁRIO: Ana.") {
		t.Errorf("prompt = %q", parts[0].Text)
	}
	if fm.config.ResponseMIMEType != "application/json" || *fm.config.Temperature != 0.1 {
		t.Errorf("config = %+v", fm.config)
	}
	if got := fm.config.ResponseSchema.Required; len(got) != 3 {
		t.Errorf("required = %v", got)
	}
}

func TestGeminiClassifierErrors(t *testing.T) {
	tests := []struct {
		name string
		fm   *fakeModels
	}{
		{"transport", &fakeModels{err: errors.New("503")}},
		{"empty", &fakeModels{text: "  "}},
		{"garbage", &fakeModels{text: "not json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newGeminiClassifier(tt.fm, "m").Classify(context.Background(), Request{Text: "x"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                    `{"a":1}`,
		"```json\n{\"a\":1}\n```":    `{"a":1}`,
		"```\n{\"a\":1}```":          `{"a":1}`,
		"Aqui está:\n{\"a\":1}\nfim": `{"a":1}`,
		"  {\"a\":{\"b\":2}}  ":      `{"a":{"b":2}}`,
	}
	for in, want := range tests {
		if got := cleanModelJSON(in); got != want {
			t.Errorf("cleanModelJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name string
		next Classifier
		want Type
	}{
		{
			name: "passes through",
			next: Func(func(context.Context, Request) (Result, error) {
				return Result{Type: PointTransaction, Response: "ok"}, nil
			}),
			want: PointTransaction,
		},
		{
			name: "error",
			next: Func(func(context.Context, Request) (Result, error) {
				return Result{}, errors.New("boom")
			}),
			want: Clarification,
		},
		{
			name: "unknown type",
			next: Func(func(context.Context, Request) (Result, error) {
				return Result{Type: "refund"}, nil
			}),
			want: Clarification,
		},
		{
			name: "timeout",
			next: Func(func(ctx context.Context, _ Request) (Result, error) {
				<-ctx.Done()
				return Result{}, ctx.Err()
			}),
			want: Clarification,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFallback(tt.next, 20*time.Millisecond, nil)
			res, err := f.Classify(context.Background(), Request{Text: "x"})
			if err != nil {
				t.Fatalf("fallback must not fail: %v", err)
			}
			if res.Type != tt.want {
				t.Fatalf("type = %q, want %q", res.Type, tt.want)
			}
			if tt.want == Clarification && res.Response != FallbackResponse {
				t.Fatalf("response = %q", res.Response)
			}
		})
	}
}

func TestBuildContext(t *testing.T) {
	got := BuildContext("Ana", 123450, []string{"Salário", "Netflix"}, 10)
	want := "USUÁRIO: Ana. SALDO: 1234.50. LISTA DE FIXOS ATUAIS: [Salário, Netflix]. DIA HOJE: 10."
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
	if got := BuildContext("Ana", -500, nil, 1); !strings.Contains(got, "SALDO: -5.00") || !strings.Contains(got, "[]") {
		t.Fatalf("got %q", got)
	}
}
