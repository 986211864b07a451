package ecs

// World is the top-level ECS container. It owns the entity pool, the component
// registry, and a deferred destruction queue flushed by CleanupSystem each tick.
type World struct {
	pool          *EntityPool
	registry      *Registry
	destroyQueue  []EntityID
	beforeDestroy func(EntityID) error
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		destroyQueue: make([]EntityID, 0, 64),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

// OnBeforeDestroy installs a hook that runs before an entity's components
// are dropped. A hook error leaves the entity alive.
func (w *World) OnBeforeDestroy(fn func(EntityID) error) {
	w.beforeDestroy = fn
}

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// Destroy removes an entity immediately.
func (w *World) Destroy(id EntityID) error {
	if w.beforeDestroy != nil {
		if err := w.beforeDestroy(id); err != nil {
			return err
		}
	}
	w.registry.RemoveAll(id)
	w.pool.Destroy(id)
	return nil
}

// MarkForDestruction queues an entity for end-of-tick cleanup.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// Pending reports how many entities are queued for destruction.
func (w *World) Pending() int { return len(w.destroyQueue) }

// FlushDestroyQueue destroys all queued entities and clears their components.
// Ids already destroyed are skipped, so marking twice is harmless.
// Called by CleanupSystem at the end of each tick.
func (w *World) FlushDestroyQueue() error {
	defer func() { w.destroyQueue = w.destroyQueue[:0] }()
	for _, id := range w.destroyQueue {
		if !w.pool.Alive(id) {
			continue
		}
		if err := w.Destroy(id); err != nil {
			return err
		}
	}
	return nil
}
