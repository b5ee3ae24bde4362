package graph

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type stubLinkage struct {
	nodes []domain.GraphNode
	edges []domain.GraphEdge
	err   error
}

func (s *stubLinkage) LinkedEntities(_ context.Context, _ string) ([]domain.GraphNode, []domain.GraphEdge, error) {
	return s.nodes, s.edges, s.err
}

func TestBuildNetwork(t *testing.T) {
	ctx := context.Background()

	t.Run("RequiresUserID", func(t *testing.T) {
		b := NewBuilder(nil, 1)
		if _, err := b.BuildNetwork(ctx, ""); err == nil {
			t.Fatal("expected error for empty userID")
		}
	})

	t.Run("DemoFallback", func(t *testing.T) {
		b := NewBuilder(nil, 1)
		g, err := b.BuildNetwork(ctx, "USR-4521")
		if err != nil {
			t.Fatalf("BuildNetwork failed: %v", err)
		}
		if g.UserID != "USR-4521" {
			t.Errorf("unexpected UserID %s", g.UserID)
		}
		if len(g.Nodes) != 7 {
			t.Errorf("expected 7 demo nodes, got %d", len(g.Nodes))
		}
		if len(g.Edges) != 7 {
			t.Errorf("expected 7 demo edges, got %d", len(g.Edges))
		}
	})

	t.Run("HubAtOrigin", func(t *testing.T) {
		b := NewBuilder(nil, 42)
		g, err := b.BuildNetwork(ctx, "USR-1")
		if err != nil {
			t.Fatalf("BuildNetwork failed: %v", err)
		}

		var hub *domain.GraphNode
		for i := range g.Nodes {
			if g.Nodes[i].ID == "USR-1" {
				hub = &g.Nodes[i]
			}
		}
		if hub == nil {
			t.Fatal("hub node missing")
		}
		if hub.X != 0 || hub.Y != 0 || hub.DistanceFromHub != 0 {
			t.Errorf("hub not at origin: (%f, %f) dist %f", hub.X, hub.Y, hub.DistanceFromHub)
		}

		for _, n := range g.Nodes {
			if n.ID == hub.ID {
				continue
			}
			want := math.Hypot(n.X, n.Y)
			if math.Abs(n.DistanceFromHub-want) > 1e-9 {
				t.Errorf("node %s distance %f, want %f", n.ID, n.DistanceFromHub, want)
			}
			if n.DistanceFromHub == 0 {
				t.Errorf("spoke %s collapsed onto hub", n.ID)
			}
		}
	})

	t.Run("DeterministicForSeed", func(t *testing.T) {
		a := NewBuilder(nil, 7)
		b := NewBuilder(nil, 7)

		g1, err := a.BuildNetwork(ctx, "USR-1")
		if err != nil {
			t.Fatalf("BuildNetwork failed: %v", err)
		}
		g2, err := b.BuildNetwork(ctx, "USR-1")
		if err != nil {
			t.Fatalf("BuildNetwork failed: %v", err)
		}

		for i := range g1.Nodes {
			if g1.Nodes[i].X != g2.Nodes[i].X || g1.Nodes[i].Y != g2.Nodes[i].Y {
				t.Errorf("node %s moved between identical builds", g1.Nodes[i].ID)
			}
		}
	})

	t.Run("CriticalFlag", func(t *testing.T) {
		b := NewBuilder(nil, 1)
		g, err := b.BuildNetwork(ctx, "USR-1")
		if err != nil {
			t.Fatalf("BuildNetwork failed: %v", err)
		}
		for _, n := range g.Nodes {
			if got, want := n.Critical, n.RiskScore >= criticalScore; got != want {
				t.Errorf("node %s (score %d): critical=%v, want %v", n.ID, n.RiskScore, got, want)
			}
		}
	})
}

func TestBuildNetworkWithLinkage(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingHubInserted", func(t *testing.T) {
		linkage := &stubLinkage{
			nodes: []domain.GraphNode{
				{ID: "DEV-1", Type: domain.EntityDevice, Label: "Phone", RiskScore: 30},
				{ID: "IP-1", Type: domain.EntityIP, Label: "10.0.0.1", RiskScore: 90},
			},
			edges: []domain.GraphEdge{
				{From: "USR-1", To: "DEV-1"},
				{From: "DEV-1", To: "IP-1"},
			},
		}

		b := NewBuilder(linkage, 1)
		g, err := b.BuildNetwork(ctx, "USR-1")
		if err != nil {
			t.Fatalf("BuildNetwork failed: %v", err)
		}

		if len(g.Nodes) != 3 {
			t.Fatalf("expected hub + 2 nodes, got %d", len(g.Nodes))
		}
		if g.Nodes[0].ID != "USR-1" || g.Nodes[0].Type != domain.EntityUser {
			t.Errorf("hub not inserted at head: %+v", g.Nodes[0])
		}
		if len(g.Edges) != 2 {
			t.Errorf("expected both edges kept, got %d", len(g.Edges))
		}
	})

	t.Run("DropsDanglingEdges", func(t *testing.T) {
		linkage := &stubLinkage{
			nodes: []domain.GraphNode{
				{ID: "USR-1", Type: domain.EntityUser},
				{ID: "DEV-1", Type: domain.EntityDevice},
			},
			edges: []domain.GraphEdge{
				{From: "USR-1", To: "DEV-1"},
				{From: "USR-1", To: "GHOST"},
				{From: "DEV-1", To: "DEV-1"},
			},
		}

		b := NewBuilder(linkage, 1)
		g, err := b.BuildNetwork(ctx, "USR-1")
		if err != nil {
			t.Fatalf("BuildNetwork failed: %v", err)
		}
		if len(g.Edges) != 1 {
			t.Fatalf("expected dangling and self edges dropped, got %d", len(g.Edges))
		}
		if g.Edges[0].From != "USR-1" || g.Edges[0].To != "DEV-1" {
			t.Errorf("wrong surviving edge: %+v", g.Edges[0])
		}
	})

	t.Run("ProviderErrorFallsBackToDemo", func(t *testing.T) {
		linkage := &stubLinkage{err: errors.New("link store down")}

		b := NewBuilder(linkage, 1)
		g, err := b.BuildNetwork(ctx, "USR-1")
		if err != nil {
			t.Fatalf("BuildNetwork failed: %v", err)
		}
		if len(g.Nodes) != 7 {
			t.Errorf("expected demo fallback, got %d nodes", len(g.Nodes))
		}
	})
}

func TestForceLayout(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		xs, ys := forceLayout(0, nil, 1)
		if len(xs) != 0 || len(ys) != 0 {
			t.Error("expected empty layout")
		}
	})

	t.Run("NodesSeparate", func(t *testing.T) {
		edges := [][2]int{{0, 1}, {0, 2}, {0, 3}}
		xs, ys := forceLayout(4, edges, 99)

		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				d := math.Hypot(xs[i]-xs[j], ys[i]-ys[j])
				if d < 1.0 {
					t.Errorf("nodes %d and %d overlap (dist %f)", i, j, d)
				}
			}
		}
	})
}
