package qdrant

import (
	"reflect"
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func strValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func TestValueToAny(t *testing.T) {
	nested := &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{
		Fields: map[string]*qdrant.Value{
			"title": strValue("Attention Is All You Need"),
			"pages": {Kind: &qdrant.Value_IntegerValue{IntegerValue: 15}},
			"score": {Kind: &qdrant.Value_DoubleValue{DoubleValue: 0.5}},
			"draft": {Kind: &qdrant.Value_BoolValue{BoolValue: false}},
			"tags": {Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{
				Values: []*qdrant.Value{strValue("nlp"), strValue("transformers")},
			}}},
		},
	}}}

	got, ok := valueToAny(nested).(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", valueToAny(nested))
	}
	want := map[string]any{
		"title": "Attention Is All You Need",
		"pages": int64(15),
		"score": 0.5,
		"draft": false,
		"tags":  []any{"nlp", "transformers"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("valueToAny = %#v, want %#v", got, want)
	}
}

func TestPointToResult(t *testing.T) {
	point := &qdrant.ScoredPoint{
		Score: 0.87,
		Payload: map[string]*qdrant.Value{
			payloadText:      strValue("alpha"),
			payloadReference: strValue("a.md"),
			payloadMetadata: {Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{
				Fields: map[string]*qdrant.Value{"wider_text": strValue("alpha in context")},
			}}},
		},
		Vectors: &qdrant.VectorsOutput{
			VectorsOptions: &qdrant.VectorsOutput_Vector{
				Vector: &qdrant.VectorOutput{
					Vector: &qdrant.VectorOutput_Dense{
						Dense: &qdrant.DenseVector{Data: []float32{1, 0, 0}},
					},
				},
			},
		},
	}

	r := pointToResult(point)
	if r.Text != "alpha" || r.Reference != "a.md" {
		t.Errorf("unexpected text/reference: %q %q", r.Text, r.Reference)
	}
	if r.Score != 0.87 {
		t.Errorf("expected score 0.87, got %v", r.Score)
	}
	if got := r.WiderText(); got != "alpha in context" {
		t.Errorf("metadata did not survive conversion: %q", got)
	}
	if !reflect.DeepEqual(r.Embedding, []float32{1, 0, 0}) {
		t.Errorf("unexpected embedding: %v", r.Embedding)
	}
}

func TestPointToResultMissingPayload(t *testing.T) {
	r := pointToResult(&qdrant.ScoredPoint{Score: 0.1})
	if r.Text != "" || r.Reference != "" || r.Metadata != nil || r.Embedding != nil {
		t.Errorf("expected zero result fields, got %+v", r)
	}
}

func TestCollectionFallsBackToDefault(t *testing.T) {
	s := &Store{def: "kb"}
	if got := s.collection(""); got != "kb" {
		t.Errorf("expected kb, got %q", got)
	}
	if got := s.collection("papers"); got != "papers" {
		t.Errorf("expected papers, got %q", got)
	}
}
