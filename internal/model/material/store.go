package material

// Store exposes read-only material retrieval for the relay and HTTP handlers.
type Store interface {
	List() ([]Material, error)
	FindByID(id string) (Material, bool, error)
}

// MemoryStore implements Store with an in-memory slice, suitable for MVP.
type MemoryStore struct {
	items []Material
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied materials.
func NewMemoryStore(items []Material) *MemoryStore {
	return &MemoryStore{items: append([]Material(nil), items...)}
}

// List returns all stored materials.
func (s *MemoryStore) List() ([]Material, error) {
	return append([]Material(nil), s.items...), nil
}

// FindByID looks up a material by identifier.
func (s *MemoryStore) FindByID(id string) (Material, bool, error) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true, nil
		}
	}
	return Material{}, false, nil
}
