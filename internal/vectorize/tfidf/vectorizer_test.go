package tfidf

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/kailas-cloud/cdcr/internal/domain"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("Barack H. Obama's U.S. trip_2024")
	want := []string{"barack", "obama", "trip_2024"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %q, want %q", got, want)
	}
}

func TestVectorize_Weights(t *testing.T) {
	vecs, err := New().Vectorize(context.Background(), []string{"Barack Obama", "Obama", "Paris"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 || len(vecs[0]) != 3 {
		t.Fatalf("shape = %dx%d, want 3x3", len(vecs), len(vecs[0]))
	}

	// vocabulary: barack, obama, paris
	idfRare := math.Log(4.0/2.0) + 1
	idfObama := math.Log(4.0/3.0) + 1
	norm := math.Sqrt(idfRare*idfRare + idfObama*idfObama)

	want0 := []float64{idfRare / norm, idfObama / norm, 0}
	for j, w := range want0 {
		if math.Abs(float64(vecs[0][j])-w) > 1e-6 {
			t.Errorf("vecs[0][%d] = %v, want %v", j, vecs[0][j], w)
		}
	}
	if !reflect.DeepEqual(vecs[1], []float32{0, 1, 0}) {
		t.Errorf("vecs[1] = %v", vecs[1])
	}
	if !reflect.DeepEqual(vecs[2], []float32{0, 0, 1}) {
		t.Errorf("vecs[2] = %v", vecs[2])
	}
}

func TestVectorize_UnitNorm(t *testing.T) {
	vecs, err := New().Vectorize(context.Background(), []string{
		"the President", "President Obama", "Obama Obama", "Angela Merkel",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range vecs {
		var sq float64
		for _, x := range v {
			sq += float64(x) * float64(x)
		}
		if math.Abs(sq-1) > 1e-5 {
			t.Errorf("vecs[%d] squared norm = %v, want 1", i, sq)
		}
	}
}

func TestVectorize_TokenlessTextIsZeroVector(t *testing.T) {
	vecs, err := New().Vectorize(context.Background(), []string{"Paris", "?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(vecs[1], []float32{0}) {
		t.Errorf("vecs[1] = %v, want zero vector", vecs[1])
	}
}

func TestVectorize_EmptyVocabulary(t *testing.T) {
	_, err := New().Vectorize(context.Background(), []string{"I", "a", "?"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "mentions" {
		t.Fatalf("expected mentions validation error, got %v", err)
	}
}

func TestVectorize_NoTexts(t *testing.T) {
	vecs, err := New().Vectorize(context.Background(), nil)
	if err != nil || len(vecs) != 0 {
		t.Errorf("Vectorize(nil) = %v, %v", vecs, err)
	}
}

func TestVocabulary(t *testing.T) {
	got := Vocabulary([]string{"Paris Obama", "obama"})
	if !reflect.DeepEqual(got, []string{"obama", "paris"}) {
		t.Errorf("Vocabulary() = %v", got)
	}
}
