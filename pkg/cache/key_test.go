package cache

import (
	"math/rand"
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "simple path no params",
			key: CacheKey{
				Route: "generic",
				Path:  "/v1/orgaos",
			},
			want: "pncp:generic:v1/orgaos",
		},
		{
			name: "empty route defaults to generic",
			key: CacheKey{
				Path: "/v1/orgaos",
			},
			want: "pncp:generic:v1/orgaos",
		},
		{
			name: "path with query params (sorted)",
			key: CacheKey{
				Route: "generic",
				Path:  "/v1/contratacoes/publicacao",
				Query: url.Values{
					"pagina":      []string{"1"},
					"dataInicial": []string{"20240101"},
					"dataFinal":   []string{"20240101"},
				},
			},
			want: "pncp:generic:v1/contratacoes/publicacao:dataFinal=20240101:dataInicial=20240101:pagina=1",
		},
		{
			name: "repeated key keeps every value in order",
			key: CacheKey{
				Route: "generic",
				Path:  "/v1/contratacoes",
				Query: url.Values{
					"uf": []string{"SP", "RJ"},
				},
			},
			want: "pncp:generic:v1/contratacoes:uf=SP:uf=RJ",
		},
		{
			name: "route kind is part of the key",
			key: CacheKey{
				Route: "veiculos",
				Path:  "/v1/contratacoes/publicacao",
				Query: url.Values{"pagina": []string{"1"}},
			},
			want: "pncp:veiculos:v1/contratacoes/publicacao:pagina=1",
		},
		{
			name: "separator characters are escaped",
			key: CacheKey{
				Route: "generic",
				Path:  "/v1/x",
				Query: url.Values{"q": []string{"a:b=c"}},
			},
			want: "pncp:generic:v1/x:q=a%3Ab%3Dc",
		},
		{
			name: "colon in path is escaped",
			key: CacheKey{
				Route: "generic",
				Path:  "/v1/x:a=1",
			},
			want: "pncp:generic:v1/x%3Aa=1",
		},
		{
			name: "trailing slash is kept",
			key: CacheKey{
				Route: "generic",
				Path:  "/v1/orgaos/",
			},
			want: "pncp:generic:v1/orgaos/",
		},
		{
			name: "key without values is dropped",
			key: CacheKey{
				Route: "generic",
				Path:  "/v1/orgaos",
				Query: url.Values{"uf": nil, "pagina": []string{"1"}},
			},
			want: "pncp:generic:v1/orgaos:pagina=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestCacheKey_DistinctTargets checks that targets the upstream would see as
// different requests never share a key.
func TestCacheKey_DistinctTargets(t *testing.T) {
	tests := []struct {
		name string
		a, b CacheKey
	}{
		{
			name: "colon in path vs query",
			a:    CacheKey{Route: "generic", Path: "/v1/x:a=1"},
			b:    CacheKey{Route: "generic", Path: "/v1/x", Query: url.Values{"a": {"1"}}},
		},
		{
			name: "trailing slash",
			a:    CacheKey{Route: "generic", Path: "/v1/x/"},
			b:    CacheKey{Route: "generic", Path: "/v1/x"},
		},
		{
			name: "escaped colon in path vs literal colon",
			a:    CacheKey{Route: "generic", Path: "/v1/x%3Aa"},
			b:    CacheKey{Route: "generic", Path: "/v1/x:a"},
		},
		{
			name: "route vs path boundary",
			a:    CacheKey{Route: "generic", Path: "/veiculos:v1"},
			b:    CacheKey{Route: "generic:veiculos", Path: "/v1"},
		},
		{
			name: "path vs first query pair",
			a:    CacheKey{Route: "generic", Path: "/v1", Query: url.Values{"b": {"2"}}},
			b:    CacheKey{Route: "generic", Path: "/v1:b=2"},
		},
		{
			name: "value containing separator",
			a:    CacheKey{Route: "generic", Path: "/v1", Query: url.Values{"a": {"1:b=2"}}},
			b:    CacheKey{Route: "generic", Path: "/v1", Query: url.Values{"a": {"1"}, "b": {"2"}}},
		},
		{
			name: "route kind",
			a:    CacheKey{Route: "generic", Path: "/v1/contratacoes/publicacao"},
			b:    CacheKey{Route: "contratacoes", Path: "/v1/contratacoes/publicacao"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ka, kb := tt.a.String(), tt.b.String(); ka == kb {
				t.Errorf("distinct targets share key %q", ka)
			}
		})
	}
}

// TestCacheKey_Determinism ensures same input always produces same key
func TestCacheKey_Determinism(t *testing.T) {
	key := CacheKey{
		Route: "generic",
		Path:  "/v1/contratacoes/publicacao",
		Query: url.Values{
			"dataInicial": []string{"20240101"},
			"dataFinal":   []string{"20240131"},
			"pagina":      []string{"1"},
		},
	}

	first := key.String()
	for i := 0; i < 10; i++ {
		if got := key.String(); got != first {
			t.Errorf("result[%d] = %v, want %v (not deterministic)", i, got, first)
		}
	}
}

// TestCacheKey_PermutationInvariance builds the same query in many insertion
// orders and expects a single key.
func TestCacheKey_PermutationInvariance(t *testing.T) {
	pairs := [][2]string{
		{"dataInicial", "20240101"},
		{"dataFinal", "20240131"},
		{"pagina", "2"},
		{"tamanhoPagina", "50"},
		{"codigoModalidadeContratacao", "8"},
		{"uf", "SP"},
	}

	want := ""
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		order := rng.Perm(len(pairs))
		q := url.Values{}
		for _, idx := range order {
			q.Add(pairs[idx][0], pairs[idx][1])
		}

		got := CacheKey{Route: "generic", Path: "/v1/contratacoes/publicacao", Query: q}.String()
		if want == "" {
			want = got
			continue
		}
		if got != want {
			t.Fatalf("permutation %v produced %q, want %q", order, got, want)
		}
	}
}
