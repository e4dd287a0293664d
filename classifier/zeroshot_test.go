package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func zeroShotServer(t *testing.T, topLabel string, topScore float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		resp := map[string]interface{}{
			"labels": []string{topLabel, "other"},
			"scores": []float64{topScore, 1 - topScore},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestZeroShotThresholdBoundary(t *testing.T) {
	legal := "legal question about court cases or law"
	tests := []struct {
		name      string
		label     string
		score     float64
		threshold float64 // 0 means use the default
		wantValid bool
	}{
		{"at default threshold", legal, 0.50, 0, true},
		{"just below default", legal, 0.4999, 0, false},
		{"well above default", legal, 0.91, 0, true},
		{"custom threshold passes", legal, 0.60, 0.55, true},
		{"custom threshold rejects", legal, 0.60, 0.65, false},
		{"non-legal label never valid", "cooking or food", 0.99, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := zeroShotServer(t, tt.label, tt.score)
			defer srv.Close()

			opts := []ZeroShotOption{ZeroShotWithEndpoint(srv.URL)}
			if tt.threshold > 0 {
				opts = append(opts, ZeroShotWithThreshold(tt.threshold))
			}
			z := NewZeroShot("test-key", opts...)

			result, err := z.Classify(context.Background(), "some question")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if result.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v (score %.4f)", result.IsValid, tt.wantValid, tt.score)
			}
			if result.Method != "zero_shot" {
				t.Errorf("Method = %q", result.Method)
			}
		})
	}
}

func TestZeroShotRejectedCategory(t *testing.T) {
	srv := zeroShotServer(t, "cooking or food", 0.88)
	defer srv.Close()

	z := NewZeroShot("test-key", ZeroShotWithEndpoint(srv.URL))
	result, err := z.Classify(context.Background(), "how do I bake bread")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.Category != "COOKING" {
		t.Errorf("Category = %q, want COOKING", result.Category)
	}
	if result.IsValid {
		t.Error("cooking query should be rejected")
	}
}

func TestZeroShotServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	z := NewZeroShot("test-key", ZeroShotWithEndpoint(srv.URL))
	if _, err := z.Classify(context.Background(), "some question"); err == nil {
		t.Error("expected error on non-200 response")
	}
}
