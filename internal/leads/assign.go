package leads

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/franchiseos/leadhub/internal/integration"
)

// Assigner resolves the responsible user of a new lead from the
// integration's assignment strategy.
type Assigner struct {
	roster Roster
	logger *slog.Logger
}

func NewAssigner(log *slog.Logger, roster Roster) *Assigner {
	if log == nil {
		log = slog.Default()
	}
	return &Assigner{
		roster: roster,
		logger: log.With(slog.String("component", "assigner")),
	}
}

// Resolve returns the user id a new lead of integ is assigned to.
func (a *Assigner) Resolve(ctx context.Context, integ integration.Integration) (string, error) {
	switch integ.AssignmentStrategy {
	case integration.StrategyFixed:
		if integ.DefaultAssigneeID == "" {
			return "", ErrDefaultAssigneeMissing
		}
		return integ.DefaultAssigneeID, nil
	case integration.StrategyRoundRobin:
		return a.roundRobin(ctx, integ)
	case integration.StrategyFirstAvailableAdmin, "":
		admins, err := a.admins(ctx, integ)
		if err != nil {
			return "", err
		}
		return admins[0].ID, nil
	default:
		return "", fmt.Errorf("unknown assignment strategy %q", integ.AssignmentStrategy)
	}
}

func (a *Assigner) roundRobin(ctx context.Context, integ integration.Integration) (string, error) {
	admins, err := a.admins(ctx, integ)
	if err != nil {
		return "", err
	}
	position, err := a.roster.AdvanceCursor(ctx, integ.ID)
	if err != nil {
		return "", fmt.Errorf("advance assignment cursor: %w", err)
	}
	idx := int(position % int64(len(admins)))
	if idx < 0 {
		idx += len(admins)
	}
	a.logger.Debug("round robin pick",
		slog.String("integration_id", integ.ID),
		slog.Int64("position", position),
		slog.Int("roster", len(admins)),
	)
	return admins[idx].ID, nil
}

func (a *Assigner) admins(ctx context.Context, integ integration.Integration) ([]User, error) {
	admins, err := a.roster.ActiveAdmins(ctx, integ.OwnerType, integ.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	if len(admins) == 0 {
		return nil, ErrNoAvailableAdmin
	}
	ordered := append([]User(nil), admins...)
	SortRoster(ordered)
	return ordered, nil
}
