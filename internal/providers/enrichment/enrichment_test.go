package enrichment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"agrinix/internal/domain"
)

type fakeProvider struct {
	name  string
	fetch func(ctx context.Context, class string) (*domain.DiseaseInfo, error)
}

func (f fakeProvider) Name() string { return f.name }

func (f fakeProvider) Fetch(ctx context.Context, class string) (*domain.DiseaseInfo, error) {
	return f.fetch(ctx, class)
}

func assertComplete(t *testing.T, info domain.DiseaseInfo) {
	t.Helper()
	if info.Description == "" {
		t.Fatalf("description is empty: %+v", info)
	}
	for name, list := range map[string][]string{
		"causes":     info.Causes,
		"symptoms":   info.Symptoms,
		"prevention": info.Prevention,
		"treatment":  info.Treatment,
	} {
		if len(list) == 0 {
			t.Fatalf("%s is empty: %+v", name, info)
		}
	}
	if info.Source == "" {
		t.Fatalf("source is empty: %+v", info)
	}
}

func TestEnrichIsTotalWhenEveryProviderFails(t *testing.T) {
	var reasons []string
	chain := NewChain(Options{
		Timeout: 20 * time.Millisecond,
		Providers: []Provider{
			NewOpenRouter(OpenRouterOptions{}),
			fakeProvider{name: "broken", fetch: func(context.Context, string) (*domain.DiseaseInfo, error) {
				return nil, errors.New("boom")
			}},
			fakeProvider{name: "panics", fetch: func(context.Context, string) (*domain.DiseaseInfo, error) {
				panic("nil map")
			}},
			fakeProvider{name: "hangs", fetch: func(ctx context.Context, _ string) (*domain.DiseaseInfo, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}},
			fakeProvider{name: "empty", fetch: func(context.Context, string) (*domain.DiseaseInfo, error) {
				return &domain.DiseaseInfo{}, nil
			}},
		},
		OnFallback: func(provider, reason string, err error) {
			reasons = append(reasons, provider+":"+reason)
		},
	})

	for _, class := range []string{"potato_early_blight", "", "   ", "???", "healthy_tomato"} {
		reasons = nil
		info := chain.Enrich(context.Background(), class)
		assertComplete(t, info)
		if info.Source != SourceDefault {
			t.Fatalf("Enrich(%q).Source = %q, want %q", class, info.Source, SourceDefault)
		}
		want := []string{"openrouter:missing_api_key", "broken:error", "panics:error", "hangs:timeout", "empty:empty"}
		if !reflect.DeepEqual(reasons, want) {
			t.Fatalf("fallback reasons = %v, want %v", reasons, want)
		}
	}
}

func TestEnrichWithoutProviders(t *testing.T) {
	info := NewChain(Options{}).Enrich(context.Background(), "maize_gray_leaf_spot")
	assertComplete(t, info)
	if info.Description != "Information about Maize Gray Leaf Spot disease" {
		t.Fatalf("Description = %q", info.Description)
	}
}

func TestEnrichStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	chain := NewChain(Options{Providers: []Provider{
		fakeProvider{name: "never", fetch: func(context.Context, string) (*domain.DiseaseInfo, error) {
			called = true
			return &domain.DiseaseInfo{Description: "x"}, nil
		}},
	}})
	info := chain.Enrich(ctx, "potato_late_blight")
	if called {
		t.Fatalf("provider called after cancellation")
	}
	assertComplete(t, info)
}

func TestEnrichFirstValidWinsAndIsCompleted(t *testing.T) {
	secondCalled := false
	chain := NewChain(Options{Providers: []Provider{
		fakeProvider{name: "partial", fetch: func(context.Context, string) (*domain.DiseaseInfo, error) {
			return &domain.DiseaseInfo{Description: "A bacterial disease spread by rain.", Causes: []string{"Xanthomonas"}}, nil
		}},
		fakeProvider{name: "second", fetch: func(context.Context, string) (*domain.DiseaseInfo, error) {
			secondCalled = true
			return nil, nil
		}},
	}})
	info := chain.Enrich(context.Background(), "pepper_bacterial_spot")
	if secondCalled {
		t.Fatalf("second provider should not be called")
	}
	assertComplete(t, info)
	if info.Source != "partial" {
		t.Fatalf("Source = %q, want partial", info.Source)
	}
	if !reflect.DeepEqual(info.Causes, []string{"Xanthomonas"}) {
		t.Fatalf("Causes = %v", info.Causes)
	}
}

func TestStaticLookup(t *testing.T) {
	static, err := NewStatic("")
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	cases := []struct {
		class      string
		source     string
		descPrefix string
	}{
		{"potato_early_blight", SourceStatic, "Early blight is a common fungal disease"},
		{"Potato Late-Blight", SourceStatic, "Late blight is a devastating disease"},
		{"healthy_tomato", SourceStatic, "No disease was detected"},
		{"tomato_healthy", SourceStatic, "No disease was detected"},
		{"banana_black_sigatoka", SourceDefault, "Information about Banana Black Sigatoka disease"},
	}
	for _, tc := range cases {
		info, err := static.Fetch(context.Background(), tc.class)
		if err != nil {
			t.Fatalf("Fetch(%q): %v", tc.class, err)
		}
		assertComplete(t, *info)
		if info.Source != tc.source {
			t.Fatalf("Fetch(%q).Source = %q, want %q", tc.class, info.Source, tc.source)
		}
		if len(info.Description) < len(tc.descPrefix) || info.Description[:len(tc.descPrefix)] != tc.descPrefix {
			t.Fatalf("Fetch(%q).Description = %q, want prefix %q", tc.class, info.Description, tc.descPrefix)
		}
	}
}

func TestStaticEntriesAreNotShared(t *testing.T) {
	static, err := NewStatic("")
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	first, _ := static.Fetch(context.Background(), "potato_early_blight")
	first.Causes[0] = "mutated"
	second, _ := static.Fetch(context.Background(), "potato_early_blight")
	if second.Causes[0] == "mutated" {
		t.Fatalf("table entry was mutated through a returned value")
	}
}

func TestStaticOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yaml")
	doc := `diseases:
  Banana Black-Sigatoka:
    description: Black sigatoka is a leaf spot disease of banana.
    causes: [Pseudocercospora fijiensis]
    symptoms: [Dark streaks on leaves]
    prevention: [Remove old leaves]
    treatment: [Systemic fungicide]
  potato_early_blight:
    description: Overridden.
    causes: [a]
    symptoms: [b]
    prevention: [c]
    treatment: [d]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write override: %v", err)
	}
	static, err := NewStatic(path)
	if err != nil {
		t.Fatalf("NewStatic(override): %v", err)
	}
	info, _ := static.Fetch(context.Background(), "banana_black_sigatoka")
	if info.Source != SourceStatic || info.Causes[0] != "Pseudocercospora fijiensis" {
		t.Fatalf("override entry = %+v", info)
	}
	info, _ = static.Fetch(context.Background(), "potato_early_blight")
	if info.Description != "Overridden." {
		t.Fatalf("override did not replace embedded entry: %+v", info)
	}
}

func TestStaticOverrideErrors(t *testing.T) {
	if _, err := NewStatic(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing override file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("diseases: [unterminated"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewStatic(path); err == nil {
		t.Fatalf("expected error for malformed override file")
	}
}

func TestGenericInfo(t *testing.T) {
	info := GenericInfo("tomato_yellow_leaf_curl_virus")
	assertComplete(t, info)
	if info.Source != SourceDefault {
		t.Fatalf("Source = %q", info.Source)
	}
	if info.Description != "Information about Tomato Yellow Leaf Curl Virus disease" {
		t.Fatalf("Description = %q", info.Description)
	}
	if got := GenericInfo("").Description; got != "Information about Unknown disease" {
		t.Fatalf("empty class description = %q", got)
	}
}
