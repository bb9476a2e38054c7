package ticker

import (
	"context"
	"sync"

	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/services"
	"go.uber.org/zap"
)

// SymbolValidator checks a symbol against the market-data provider
type SymbolValidator interface {
	ValidateSymbol(ctx context.Context, symbol string) error
}

// AdminChecker reports whether a user may edit the table
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// TableStore persists the alias table
type TableStore interface {
	Save(aliases []models.Alias) error
}

// ChangeAuditor records alias edits
type ChangeAuditor interface {
	LogAliasChange(actorID string, alias models.Alias, added bool)
}

// Catalog edits the alias table on behalf of admins
type Catalog struct {
	resolver  *Resolver
	store     TableStore
	validator SymbolValidator
	admins    AdminChecker
	audit     ChangeAuditor
	logger    *zap.Logger

	// serializes edits; lookups go through the resolver snapshot
	mu sync.Mutex
}

// NewCatalog creates a new Catalog
func NewCatalog(resolver *Resolver, store TableStore, validator SymbolValidator, admins AdminChecker, logger *zap.Logger) *Catalog {
	return &Catalog{
		resolver:  resolver,
		store:     store,
		validator: validator,
		admins:    admins,
		logger:    logger,
	}
}

// SetAuditor makes the catalog report successful edits to a
func (c *Catalog) SetAuditor(a ChangeAuditor) {
	c.audit = a
}

// List returns the current table in resolution order
func (c *Catalog) List() []models.Alias {
	return c.resolver.Aliases()
}

// Reload replaces the table with one read from disk
func (c *Catalog) Reload(aliases []models.Alias) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolver.Replace(aliases)
}

// Add binds name to symbol. An existing alias keeps its position and is
// re-pointed; a new alias goes to the end of the table.
func (c *Catalog) Add(ctx context.Context, actorID, name, symbol string) (models.Alias, error) {
	alias := models.NormalizeAlias(name, symbol)
	if alias.Name == "" || alias.Symbol == "" {
		return alias, services.NewDomainError(services.ErrorTypeValidation, "alias name and symbol are required", nil)
	}
	if err := c.requireAdmin(ctx, actorID); err != nil {
		return alias, err
	}
	if err := c.validator.ValidateSymbol(ctx, alias.Symbol); err != nil {
		return alias, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.resolver.Aliases()
	replaced := false
	for i := range next {
		if next[i].Name == alias.Name {
			next[i].Symbol = alias.Symbol
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, alias)
	}

	if err := c.commit(next); err != nil {
		return alias, err
	}

	if c.audit != nil {
		c.audit.LogAliasChange(actorID, alias, true)
	}
	c.logger.Info("alias added",
		zap.String("actor_id", actorID),
		zap.String("alias", alias.Name),
		zap.String("symbol", alias.Symbol),
		zap.Bool("replaced", replaced))
	return alias, nil
}

// Remove deletes the alias called name
func (c *Catalog) Remove(ctx context.Context, actorID, name string) (models.Alias, error) {
	target := models.NormalizeAlias(name, "")
	if target.Name == "" {
		return target, services.NewDomainError(services.ErrorTypeValidation, "alias name is required", nil)
	}
	if err := c.requireAdmin(ctx, actorID); err != nil {
		return target, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.resolver.Aliases()
	next := make([]models.Alias, 0, len(current))
	var removed *models.Alias
	for i := range current {
		if removed == nil && current[i].Name == target.Name {
			removed = &current[i]
			continue
		}
		next = append(next, current[i])
	}
	if removed == nil {
		return target, services.NewDomainError(services.ErrorTypeNotFound, "alias not found", nil).
			WithDetail("alias", target.Name)
	}

	if err := c.commit(next); err != nil {
		return *removed, err
	}

	if c.audit != nil {
		c.audit.LogAliasChange(actorID, *removed, false)
	}
	c.logger.Info("alias removed",
		zap.String("actor_id", actorID),
		zap.String("alias", removed.Name),
		zap.String("symbol", removed.Symbol))
	return *removed, nil
}

// commit persists next and then publishes it. Must hold mu.
func (c *Catalog) commit(next []models.Alias) error {
	if err := c.store.Save(next); err != nil {
		return services.WrapInternal("failed to save alias table", err)
	}
	c.resolver.Replace(next)
	return nil
}

func (c *Catalog) requireAdmin(ctx context.Context, actorID string) error {
	admin, err := c.admins.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !admin {
		return services.NewDomainError(services.ErrorTypeForbidden, "admin privileges required", nil).
			WithDetail("user_id", actorID)
	}
	return nil
}
