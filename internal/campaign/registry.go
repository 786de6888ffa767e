package campaign

import (
	"context"
	"fmt"

	"daoup/internal/chain"
)

// Registry enumerates campaign contracts from the configured escrow code ids.
type Registry struct {
	reader       ChainReader
	cache        *Cache
	codeIDs      []uint64
	denyList     string
	featuredList string
}

// NewRegistry creates a registry. Empty list addresses disable that list.
func NewRegistry(reader ChainReader, cache *Cache, codeIDs []uint64, denyList, featuredList string) *Registry {
	if cache == nil {
		cache = NewCache()
	}
	return &Registry{
		reader:       reader,
		cache:        cache,
		codeIDs:      codeIDs,
		denyList:     denyList,
		featuredList: featuredList,
	}
}

// Addresses returns every campaign contract across code ids, minus the deny list.
func (r *Registry) Addresses(ctx context.Context) ([]string, error) {
	return Load(ctx, r.cache, RegistryKey, r.addresses)
}

func (r *Registry) addresses(ctx context.Context) ([]string, error) {
	denied := make(map[string]struct{})
	if r.denyList != "" {
		members, err := chain.ListMembers(ctx, r.reader, r.denyList)
		if err != nil {
			return nil, fmt.Errorf("load deny list: %w", err)
		}
		for _, member := range members {
			denied[member] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, codeID := range r.codeIDs {
		contracts, err := r.reader.ContractsByCode(ctx, codeID)
		if err != nil {
			return nil, fmt.Errorf("list contracts for code %d: %w", codeID, err)
		}
		for _, address := range contracts {
			if _, ok := denied[address]; ok {
				continue
			}
			if _, ok := seen[address]; ok {
				continue
			}
			seen[address] = struct{}{}
			out = append(out, address)
		}
	}
	return out, nil
}

// Featured returns the featured campaign addresses.
func (r *Registry) Featured(ctx context.Context) ([]string, error) {
	if r.featuredList == "" {
		return nil, nil
	}
	return Load(ctx, r.cache, FeaturedKey, func(ctx context.Context) ([]string, error) {
		return chain.ListMembers(ctx, r.reader, r.featuredList)
	})
}
