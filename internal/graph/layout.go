package graph

import (
	"math"
	"math/rand"
)

// Layout parameters. The spring constants are tuned for small hub-and-spoke
// investigation graphs, not general graph drawing.
const (
	maxIterations  = 200
	convergenceEps = 0.01
	repulsion      = 2000.0
	springLength   = 120.0
	springStrength = 0.05
	coolingFactor  = 0.95
)

// forceLayout computes 2-D positions for nodes using a force-directed
// simulation: pairwise repulsion between all nodes, spring attraction along
// edges. Deterministic for a fixed seed and input order.
func forceLayout(n int, edges [][2]int, seed int64) ([]float64, []float64) {
	xs := make([]float64, n)
	ys := make([]float64, n)
	if n == 0 {
		return xs, ys
	}

	// Seeded initial placement on a circle with jitter so symmetric inputs
	// do not collapse onto degenerate axes.
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		r := springLength * (0.8 + 0.4*rng.Float64())
		xs[i] = r * math.Cos(angle)
		ys[i] = r * math.Sin(angle)
	}

	fx := make([]float64, n)
	fy := make([]float64, n)
	temperature := springLength

	for iter := 0; iter < maxIterations; iter++ {
		for i := range fx {
			fx[i], fy[i] = 0, 0
		}

		// Repulsive force between every node pair.
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx := xs[i] - xs[j]
				dy := ys[i] - ys[j]
				distSq := dx*dx + dy*dy
				if distSq < 1e-6 {
					distSq = 1e-6
					dx = 1e-3
				}
				dist := math.Sqrt(distSq)
				f := repulsion / distSq
				fx[i] += f * dx / dist
				fy[i] += f * dy / dist
				fx[j] -= f * dx / dist
				fy[j] -= f * dy / dist
			}
		}

		// Attractive spring force along edges.
		for _, e := range edges {
			i, j := e[0], e[1]
			dx := xs[j] - xs[i]
			dy := ys[j] - ys[i]
			dist := math.Hypot(dx, dy)
			if dist < 1e-6 {
				continue
			}
			f := springStrength * (dist - springLength)
			fx[i] += f * dx / dist
			fy[i] += f * dy / dist
			fx[j] -= f * dx / dist
			fy[j] -= f * dy / dist
		}

		// Apply displacements, capped by the cooling temperature.
		maxDisp := 0.0
		for i := 0; i < n; i++ {
			disp := math.Hypot(fx[i], fy[i])
			if disp > maxDisp {
				maxDisp = disp
			}
			limit := disp
			if limit > temperature {
				limit = temperature
			}
			if disp > 0 {
				xs[i] += fx[i] / disp * limit
				ys[i] += fy[i] / disp * limit
			}
		}
		temperature *= coolingFactor

		if maxDisp < convergenceEps {
			break
		}
	}

	return xs, ys
}
