package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type configRepository struct {
	s *Store
}

// Get возвращает параметр по имени. Если tx передан, он должен принадлежать этому хранилищу.
func (r *configRepository) Get(_ context.Context, tx domain.Tx, name string) (domain.ConfigEntry, error) {
	if tx != nil {
		if _, err := r.s.txFrom(tx); err != nil {
			return domain.ConfigEntry{}, err
		}
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entry, ok := r.s.configs[strings.TrimSpace(name)]
	if !ok {
		return domain.ConfigEntry{}, domain.ErrConfigNotFound
	}
	return entry, nil
}

// List возвращает все параметры по имени.
func (r *configRepository) List(_ context.Context) ([]domain.ConfigEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.ConfigEntry, 0, len(r.s.configs))
	for _, entry := range r.s.configs {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Upsert создаёт или заменяет параметр после проверки типа значения.
func (r *configRepository) Upsert(_ context.Context, entry domain.ConfigEntry) (domain.ConfigEntry, error) {
	entry.Name = strings.TrimSpace(entry.Name)
	if err := entry.Validate(); err != nil {
		return domain.ConfigEntry{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry.UpdatedAt = r.s.now()
	r.s.configs[entry.Name] = entry
	return entry, nil
}

var _ domain.ConfigRepository = (*configRepository)(nil)
