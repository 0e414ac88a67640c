package hnsw

import (
	"math"
	"math/rand"
	"testing"
)

func randomUnitVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		x := rng.NormFloat64()
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func linearScanTop1(vectors [][]float32, q []float32) int {
	best := 0
	bestSim := cosine(vectors[0], q)
	for i := 1; i < len(vectors); i++ {
		sim := cosine(vectors[i], q)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	return best
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	ix := New(DefaultConfig(8))
	_, err := ix.Insert(make([]float32, 4))
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestSearchOnEmptyIndexReturnsEmpty(t *testing.T) {
	ix := New(DefaultConfig(8))
	results, err := ix.Search(make([]float32, 8), 5)
	if err != nil {
		t.Fatalf("Search on empty index: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestInsertSingleNodeBecomesEntryPointAndIsFound(t *testing.T) {
	ix := New(DefaultConfig(4))
	v := []float32{1, 0, 0, 0}
	id, err := ix.Insert(v)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := ix.Search(v, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != id {
		t.Fatalf("Search = %+v, want single hit with id %d", results, id)
	}
	if results[0].Similarity < 0.999 {
		t.Fatalf("similarity = %v, want ~1.0", results[0].Similarity)
	}
}

func TestRemoveDeletesNodeAndReplacesEntryPoint(t *testing.T) {
	ix := New(DefaultConfig(4))
	rng := rand.New(rand.NewSource(7))
	var ids []uint64
	for i := 0; i < 20; i++ {
		id, err := ix.Insert(randomUnitVector(rng, 4))
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		if err := ix.Remove(id); err != nil {
			t.Fatalf("Remove(%d): %v", id, err)
		}
	}
	if ix.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after removing every node", ix.Len())
	}

	if err := ix.Remove(9999); err == nil {
		t.Fatal("expected error removing an already-removed id")
	}
}

func TestMemoryUsageGrowsWithInserts(t *testing.T) {
	ix := New(DefaultConfig(16))
	before := ix.MemoryUsage()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		if _, err := ix.Insert(randomUnitVector(rng, 16)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	after := ix.MemoryUsage()
	if after <= before {
		t.Fatalf("MemoryUsage did not grow: before=%d after=%d", before, after)
	}
}

// TestRecallAgainstLinearScan mirrors spec §8 scenario 6 at a smaller scale
// suitable for a fast unit test: insert N random unit vectors with the
// reference M/ef_construction parameters, then require that top-1 search
// agrees with a linear scan on at least 95% of random queries.
func TestRecallAgainstLinearScan(t *testing.T) {
	const (
		dim     = 32
		n       = 500
		queries = 100
	)
	rng := rand.New(rand.NewSource(42))
	ix := New(Config{Dim: dim, M: DefaultM, EfConstruction: DefaultEfConstruction, EfSearch: DefaultEfSearch, Seed: 42})

	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		v := randomUnitVector(rng, dim)
		vectors[i] = v
		if _, err := ix.Insert(v); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	matches := 0
	for q := 0; q < queries; q++ {
		query := randomUnitVector(rng, dim)
		want := linearScanTop1(vectors, query)

		results, err := ix.Search(query, 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) == 0 {
			continue
		}
		if int(results[0].ID) == want {
			matches++
		}
	}

	recall := float64(matches) / float64(queries)
	if recall < 0.95 {
		t.Fatalf("recall = %.2f, want >= 0.95 (%d/%d matched)", recall, matches, queries)
	}
}

func TestSearchResultsOrderedByDescendingSimilarity(t *testing.T) {
	ix := New(DefaultConfig(4))
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		if _, err := ix.Insert(randomUnitVector(rng, 4)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	results, err := ix.Search(randomUnitVector(rng, 4), 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Similarity < results[i].Similarity {
			t.Fatalf("results not sorted by descending similarity at index %d: %+v", i, results)
		}
	}
}
