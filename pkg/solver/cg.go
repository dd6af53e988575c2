package solver

import (
	"math"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxIterations bounds the CG solve when the caller does not
// specify one; the surveyed source left convergence criteria implicit,
// so this re-implementation adds an explicit residual threshold and
// iteration cap (see the open questions in the design notes).
const DefaultMaxIterations = 200

// DefaultTolerance is the relative residual norm at which CG stops.
const DefaultTolerance = 1e-6

// ranges splits [0, n) into up to jobs contiguous chunks.
func ranges(n, jobs int) [][2]int {
	if jobs < 1 {
		jobs = 1
	}
	if jobs > n {
		jobs = n
	}
	if jobs == 0 {
		return nil
	}
	chunk := (n + jobs - 1) / jobs
	var out [][2]int
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

// matVec computes y = A*x, splitting row ranges across jobs workers. The
// output slices for disjoint ranges never alias, so no reduction step is
// needed after the fork/join barrier.
func matVec(a *Matrix, x, y []float64, jobs int) {
	var g errgroup.Group
	for _, r := range ranges(a.N, jobs) {
		lo, hi := r[0], r[1]
		g.Go(func() error {
			a.mulVecRange(x, y, lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// dot computes the inner product of a and b, with each worker
// accumulating a thread-local partial sum that is reduced additively
// once every worker has finished.
func dot(a, b []float64, jobs int) float64 {
	rs := ranges(len(a), jobs)
	partials := make([]float64, len(rs))
	var g errgroup.Group
	for i, r := range rs {
		i, lo, hi := i, r[0], r[1]
		g.Go(func() error {
			var s float64
			for k := lo; k < hi; k++ {
				s += a[k] * b[k]
			}
			partials[i] = s
			return nil
		})
	}
	_ = g.Wait()
	var total float64
	for _, p := range partials {
		total += p
	}
	return total
}

// axpy computes y[i] = a*x[i] + y[i] in place over row ranges.
func axpy(alpha float64, x, y []float64, jobs int) {
	var g errgroup.Group
	for _, r := range ranges(len(x), jobs) {
		lo, hi := r[0], r[1]
		g.Go(func() error {
			for k := lo; k < hi; k++ {
				y[k] += alpha * x[k]
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Result carries the solved vector plus solver diagnostics: solver
// non-convergence within the surveyed source's error policy is not
// fatal, so callers inspect Converged rather than receiving an error.
type Result struct {
	X          []float64
	Iterations int
	Residual   float64
	Converged  bool
}

// Solve runs diagonal-preconditioned conjugate gradient on sys.A*x =
// sys.B, using jobs workers for the SpMV/dot/axpy kernels. If maxIters
// or tol are <= 0, the package defaults are used. Non-convergence within
// the iteration budget is reported via Result.Converged = false and the
// last iterate is still returned — the global placer's failure
// policy is to cap the step and continue, not to abort.
func Solve(sys *System, maxIters int, tol float64, jobs int) Result {
	n := sys.A.N
	if maxIters <= 0 {
		maxIters = DefaultMaxIterations
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}

	x := make([]float64, n)
	if n == 0 {
		return Result{X: x, Converged: true}
	}

	precond := make([]float64, n)
	for i := 0; i < n; i++ {
		d := sys.A.Diag(i)
		if d == 0 {
			d = 1
		}
		precond[i] = 1 / d
	}

	r := make([]float64, n)
	copy(r, sys.B)
	ax := make([]float64, n)
	matVec(sys.A, x, ax, jobs)
	axpy(-1, ax, r, jobs)

	z := make([]float64, n)
	applyPrecond(precond, r, z)
	p := make([]float64, n)
	copy(p, z)

	rzOld := dot(r, z, jobs)
	bNorm := math.Sqrt(dot(sys.B, sys.B, jobs))
	if bNorm == 0 {
		bNorm = 1
	}

	iter := 0
	for ; iter < maxIters; iter++ {
		resNorm := math.Sqrt(dot(r, r, jobs)) / bNorm
		if resNorm < tol {
			return Result{X: x, Iterations: iter, Residual: resNorm, Converged: true}
		}

		matVec(sys.A, p, ax, jobs)
		pAp := dot(p, ax, jobs)
		if pAp == 0 {
			break
		}
		alpha := rzOld / pAp

		axpy(alpha, p, x, jobs)
		axpy(-alpha, ax, r, jobs)

		applyPrecond(precond, r, z)
		rzNew := dot(r, z, jobs)
		if rzOld == 0 {
			break
		}
		beta := rzNew / rzOld
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
		rzOld = rzNew
	}

	finalRes := math.Sqrt(dot(r, r, jobs)) / bNorm
	return Result{X: x, Iterations: iter, Residual: finalRes, Converged: finalRes < tol}
}

func applyPrecond(precond, r, z []float64) {
	for i := range r {
		z[i] = precond[i] * r[i]
	}
}
