// Package ticker maps free-text company mentions to trading symbols.
package ticker

import (
	"strings"
	"sync/atomic"

	"github.com/upb/stockbot/models"
)

// table is an immutable alias snapshot
type table struct {
	aliases []models.Alias
}

// Resolver finds the first alias, in table order, contained in a text.
// Lookups never block; the table is replaced as a whole.
type Resolver struct {
	current atomic.Pointer[table]
}

// NewResolver creates a resolver over aliases
func NewResolver(aliases []models.Alias) *Resolver {
	r := &Resolver{}
	r.Replace(aliases)
	return r
}

// Replace swaps in a new table. The slice is copied.
func (r *Resolver) Replace(aliases []models.Alias) {
	snapshot := make([]models.Alias, 0, len(aliases))
	for _, a := range aliases {
		a = models.NormalizeAlias(a.Name, a.Symbol)
		if a.Name == "" {
			continue
		}
		snapshot = append(snapshot, a)
	}
	r.current.Store(&table{aliases: snapshot})
}

// Aliases returns a copy of the current table
func (r *Resolver) Aliases() []models.Alias {
	t := r.current.Load()
	out := make([]models.Alias, len(t.aliases))
	copy(out, t.aliases)
	return out
}

// Len returns the number of aliases
func (r *Resolver) Len() int {
	return len(r.current.Load().aliases)
}

// Resolve returns the symbol of the first alias contained in text.
// Ties go to table order, never to the longest match.
func (r *Resolver) Resolve(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, a := range r.current.Load().aliases {
		if strings.Contains(lowered, a.Name) {
			return a.Symbol, true
		}
	}
	return "", false
}
