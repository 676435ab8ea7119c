package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

type fakeEmbedAPI struct {
	model    string
	contents []*genai.Content
	resp     *genai.EmbedContentResponse
	err      error
}

func (f *fakeEmbedAPI) EmbedContent(_ context.Context, model string, contents []*genai.Content, _ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.contents = contents
	return f.resp, f.err
}

func TestGeminiEmbedStrings(t *testing.T) {
	api := &fakeEmbedAPI{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{
			{Values: []float32{0.5, 0.25}},
			{Values: []float32{1, 2}},
		},
	}}

	e := newGeminiEmbedder(api, "")
	got, err := e.EmbedStrings(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedStrings err: %v", err)
	}

	if diff := cmp.Diff([][]float64{{0.5, 0.25}, {1, 2}}, got); diff != "" {
		t.Fatalf("vectors mismatch (-want +got):\n%s", diff)
	}
	if api.model != DefaultEmbedModel {
		t.Fatalf("unexpected model: %s", api.model)
	}
	if len(api.contents) != 2 || api.contents[1].Parts[0].Text != "b" {
		t.Fatalf("unexpected contents sent: %+v", api.contents)
	}
}

func TestGeminiEmbedModelOption(t *testing.T) {
	api := &fakeEmbedAPI{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{1}}},
	}}

	e := newGeminiEmbedder(api, "text-embedding-004")
	if _, err := e.EmbedStrings(context.Background(), []string{"a"}, embedding.WithModel("gemini-embedding-001")); err != nil {
		t.Fatalf("EmbedStrings err: %v", err)
	}
	if api.model != "gemini-embedding-001" {
		t.Fatalf("model option ignored: %s", api.model)
	}
}

func TestGeminiEmbedErrors(t *testing.T) {
	cases := []struct {
		name string
		api  *fakeEmbedAPI
	}{
		{name: "api error", api: &fakeEmbedAPI{err: errors.New("unavailable")}},
		{name: "count mismatch", api: &fakeEmbedAPI{resp: &genai.EmbedContentResponse{}}},
		{name: "empty vector", api: &fakeEmbedAPI{resp: &genai.EmbedContentResponse{
			Embeddings: []*genai.ContentEmbedding{{}},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newGeminiEmbedder(tc.api, "")
			if _, err := e.EmbedStrings(context.Background(), []string{"a"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
