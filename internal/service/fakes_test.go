package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"countertop-service/internal/models"
)

type fakeCache struct {
	mu            sync.Mutex
	entries       map[int64]map[string][]byte
	invalidations map[int64]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries:       make(map[int64]map[string][]byte),
		invalidations: make(map[int64]int),
	}
}

func (c *fakeCache) GetInventoryJSON(ctx context.Context, companyID int64, name string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[companyID][name]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) SetInventoryJSON(ctx context.Context, companyID int64, name string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[companyID] == nil {
		c.entries[companyID] = make(map[string][]byte)
	}
	c.entries[companyID][name] = raw
	return nil
}

func (c *fakeCache) InvalidateInventory(ctx context.Context, companyID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, companyID)
	c.invalidations[companyID]++
	return nil
}

func (c *fakeCache) invalidated(companyID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations[companyID]
}

type fakeGuard struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (g *fakeGuard) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed == nil {
		g.claimed = make(map[string]bool)
	}
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

func (g *fakeGuard) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, key)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.SaleEvent
}

func (p *fakePublisher) PublishSaleEvent(ctx context.Context, event *models.SaleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}
