package vectorops

import "math"

// MahalanobisSquared computes vᵀ M v for a deviation vector v and an
// n×n matrix M (typically an inverse covariance matrix), the squared
// Mahalanobis distance when M = Σ⁻¹. Complexity O(n²).
func MahalanobisSquared(v []float64, m [][]float64) float64 {
	n := len(v)
	mv := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			mv[i] += m[i][j] * v[j]
		}
	}
	var result float64
	for i := 0; i < n; i++ {
		result += v[i] * mv[i]
	}
	return result
}

// EuclideanSquared computes the squared Euclidean norm of v, the
// degenerate case of MahalanobisSquared with M = I. Used as a fallback
// when a covariance matrix is unavailable or singular.
func EuclideanSquared(v []float64) float64 {
	var sum float64
	for _, vi := range v {
		sum += vi * vi
	}
	return sum
}

// InvertCovariance inverts a symmetric positive-definite matrix via
// Cholesky decomposition (Sigma = L Lt, Sigma^-1 = (Lt)^-1 L^-1).
// Returns nil if cov is singular or not positive-definite. Complexity
// O(n^3); intended to be called on baseline update, not per query.
func InvertCovariance(cov [][]float64) [][]float64 {
	n := len(cov)
	if n == 0 {
		return nil
	}

	l := choleskyDecompose(cov)
	if l == nil {
		return nil
	}
	linv := invertLowerTriangular(l)
	if linv == nil {
		return nil
	}

	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				inv[i][j] += linv[k][i] * linv[k][j]
			}
		}
	}
	return inv
}

func choleskyDecompose(a [][]float64) [][]float64 {
	n := len(a)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil
				}
				l[i][j] = math.Sqrt(sum)
			} else {
				if l[j][j] == 0 {
					return nil
				}
				l[i][j] = sum / l[j][j]
			}
		}
	}
	return l
}

func invertLowerTriangular(l [][]float64) [][]float64 {
	n := len(l)
	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
	}

	for j := 0; j < n; j++ {
		if l[j][j] == 0 {
			return nil
		}
		inv[j][j] = 1.0 / l[j][j]
		for i := j + 1; i < n; i++ {
			var sum float64
			for k := j; k < i; k++ {
				sum -= l[i][k] * inv[k][j]
			}
			inv[i][j] = sum / l[i][i]
		}
	}
	return inv
}

// ShannonEntropy computes H = -sum(p(i) * log2(p(i))) over a histogram
// of non-negative counts, in bits. Returns 0 for an empty or degenerate
// (single-bucket) distribution.
func ShannonEntropy(counts []uint64) float64 {
	var total uint64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}

	fTotal := float64(total)
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / fTotal
		h -= p * math.Log2(p)
	}
	return h
}

// MaxEntropy returns log2(k), the maximum entropy of a k-bucket
// distribution with all buckets equally probable.
func MaxEntropy(k int) float64 {
	if k <= 1 {
		return 0
	}
	return math.Log2(float64(k))
}

// NormalizedEntropy returns ShannonEntropy(counts) / MaxEntropy(len(counts))
// in [0,1]. Returns 0 if MaxEntropy is 0 (fewer than two buckets).
func NormalizedEntropy(counts []uint64) float64 {
	hMax := MaxEntropy(len(counts))
	if hMax == 0 {
		return 0
	}
	return ShannonEntropy(counts) / hMax
}
