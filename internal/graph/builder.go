// Package graph builds entity-relationship graphs for fraud investigation.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// criticalScore marks a node as critical for investigator highlighting.
const criticalScore = 85

// Builder constructs entity networks around an investigated user and lays
// them out with a seeded force-directed simulation. Stateless apart from the
// optional linkage provider; safe for concurrent use.
type Builder struct {
	linkage domain.LinkageProvider // nil falls back to the demo set
	seed    int64
}

// NewBuilder creates a graph builder. The seed fixes the layout so repeated
// builds of the same graph return identical coordinates.
func NewBuilder(linkage domain.LinkageProvider, seed int64) *Builder {
	return &Builder{
		linkage: linkage,
		seed:    seed,
	}
}

// BuildNetwork constructs the hub-and-spoke entity graph for a user and
// computes node positions. The hub user sits at the origin; every other node
// carries its offset and Euclidean distance from the hub.
func (b *Builder) BuildNetwork(ctx context.Context, userID string) (*domain.EntityGraph, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}

	nodes, edges := b.linkedEntities(ctx, userID)

	// Index nodes and make sure the hub exists.
	index := make(map[string]int, len(nodes))
	hubIdx := -1
	for i, n := range nodes {
		index[n.ID] = i
		if n.ID == userID {
			hubIdx = i
		}
	}
	if hubIdx == -1 {
		hub := domain.GraphNode{
			ID:    userID,
			Type:  domain.EntityUser,
			Label: "User Account",
		}
		nodes = append([]domain.GraphNode{hub}, nodes...)
		index = make(map[string]int, len(nodes))
		for i, n := range nodes {
			index[n.ID] = i
		}
		hubIdx = 0
	}

	// Keep only edges between known nodes.
	edgePairs := make([][2]int, 0, len(edges))
	kept := make([]domain.GraphEdge, 0, len(edges))
	for _, e := range edges {
		i, iok := index[e.From]
		j, jok := index[e.To]
		if !iok || !jok || i == j {
			continue
		}
		edgePairs = append(edgePairs, [2]int{i, j})
		kept = append(kept, e)
	}

	xs, ys := forceLayout(len(nodes), edgePairs, b.seed)

	// Normalize: the hub sits at the origin, spokes are offsets.
	hubX, hubY := xs[hubIdx], ys[hubIdx]
	for i := range nodes {
		nodes[i].X = xs[i] - hubX
		nodes[i].Y = ys[i] - hubY
		nodes[i].DistanceFromHub = math.Hypot(nodes[i].X, nodes[i].Y)
		nodes[i].Critical = nodes[i].RiskScore >= criticalScore
	}

	return &domain.EntityGraph{
		UserID: userID,
		Nodes:  nodes,
		Edges:  kept,
	}, nil
}

func (b *Builder) linkedEntities(ctx context.Context, userID string) ([]domain.GraphNode, []domain.GraphEdge) {
	if b.linkage != nil {
		nodes, edges, err := b.linkage.LinkedEntities(ctx, userID)
		if err == nil && len(nodes) > 0 {
			return nodes, edges
		}
		if err != nil {
			slog.Warn("linkage provider failed, using demonstration set",
				"user_id", userID,
				"error", err,
			)
		}
	}
	return demoEntities(userID)
}

// demoEntities is the fixed demonstration graph used when no linkage
// provider is configured.
func demoEntities(userID string) ([]domain.GraphNode, []domain.GraphEdge) {
	nodes := []domain.GraphNode{
		{ID: userID, Type: domain.EntityUser, Label: "User Account", RiskScore: 75},
		{ID: "DEV-1192", Type: domain.EntityDevice, Label: "iPhone 15", RiskScore: 45},
		{ID: "DEV-2283", Type: domain.EntityDevice, Label: "MacBook Pro", RiskScore: 12},
		{ID: "DEV-3394", Type: domain.EntityDevice, Label: "Windows PC", RiskScore: 82},
		{ID: "IP-001", Type: domain.EntityIP, Label: "192.168.1.x", RiskScore: 15},
		{ID: "IP-002", Type: domain.EntityIP, Label: "45.227.x.x", RiskScore: 92},
		{ID: "ACC-8834", Type: domain.EntityAccount, Label: "Account ***4521", RiskScore: 68},
	}
	edges := []domain.GraphEdge{
		{From: userID, To: "DEV-1192"},
		{From: userID, To: "DEV-2283"},
		{From: userID, To: "DEV-3394"},
		{From: userID, To: "ACC-8834"},
		{From: "DEV-1192", To: "IP-001"},
		{From: "DEV-2283", To: "IP-001"},
		{From: "DEV-3394", To: "IP-002"},
	}
	return nodes, edges
}
