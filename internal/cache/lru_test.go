package cache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func env(payload string) envelope {
	return envelope{Payload: json.RawMessage(payload), TTL: 1000}
}

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", env(`"A"`))
	c.put("b", env(`"B"`))

	got, ok := c.get("a")
	assert.True(t, ok)
	assert.JSONEq(t, `"A"`, string(got.Payload))

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", env(`"A"`))
	c.put("b", env(`"B"`))
	c.put("c", env(`"C"`)) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	got, ok := c.get("b")
	assert.True(t, ok)
	assert.JSONEq(t, `"B"`, string(got.Payload))

	_, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", env(`"A"`))
	c.put("b", env(`"B"`))

	c.get("a")
	c.put("c", env(`"C"`))

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", env(`"A1"`))
	c.put("a", env(`"A2"`))

	got, ok := c.get("a")
	assert.True(t, ok)
	assert.JSONEq(t, `"A2"`, string(got.Payload))
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_SizeFloorsAtOne(t *testing.T) {
	c := newLRUCache(0)

	c.put("a", env(`1`))
	c.put("b", env(`2`))

	assert.Equal(t, 1, c.len())
	_, ok := c.get("b")
	assert.True(t, ok)
}
