package ecs

import (
	"fmt"
	"strconv"
)

// EntityID encodes a 32-bit serial in the lower bits and the 32-bit restart
// generation in the upper bits. Serials are never handed out twice, so an id
// stays unique for the lifetime of the process.
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

// String renders the id as 16 hex digits, the form used on the wire.
func (id EntityID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseEntityID is the inverse of String.
func ParseEntityID(s string) (EntityID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse entity id %q: %w", s, err)
	}
	return EntityID(v), nil
}

// EntityPool hands out ids stamped with the current generation. Serial 0 is
// reserved so the zero EntityID never names a live entity.
type EntityPool struct {
	live       map[EntityID]struct{}
	nextIndex  uint32
	generation uint32
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		live:      make(map[EntityID]struct{}, 256),
		nextIndex: 1,
	}
}

func (p *EntityPool) Create() EntityID {
	id := NewEntityID(p.nextIndex, p.generation)
	p.nextIndex++
	p.live[id] = struct{}{}
	return id
}

func (p *EntityPool) Alive(id EntityID) bool {
	_, ok := p.live[id]
	return ok
}

func (p *EntityPool) Destroy(id EntityID) {
	delete(p.live, id)
}

// Generation is the generation stamped on newly created ids.
func (p *EntityPool) Generation() uint32 { return p.generation }

// AdvanceGeneration bumps the generation for every id created afterwards.
// Existing ids keep their generation and stay alive until destroyed.
func (p *EntityPool) AdvanceGeneration() uint32 {
	p.generation++
	return p.generation
}

// Len reports the number of live entities.
func (p *EntityPool) Len() int { return len(p.live) }
