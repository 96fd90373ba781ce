package variant

import (
	"fmt"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
)

// Rules are the per-variant game mechanics. Apply mutates only the board and
// variant progress and reports the session outcome; turn and status handling
// stay with the caller.
type Rules interface {
	Variant() entity.Variant
	Setup(session *entity.Session, options entity.Options) error
	Apply(session *entity.Session, slot entity.Slot, action entity.Action) (entity.Outcome, error)
}

type Registry struct {
	rules map[entity.Variant]Rules
}

func NewRegistry(rules ...Rules) *Registry {
	registry := &Registry{rules: make(map[entity.Variant]Rules, len(rules))}
	for _, r := range rules {
		registry.rules[r.Variant()] = r
	}

	return registry
}

func (that *Registry) Lookup(variant entity.Variant) (Rules, error) {
	rules, ok := that.rules[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperror.ErrUnknownVariant, variant)
	}

	return rules, nil
}
