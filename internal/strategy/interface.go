package strategy

import (
	"barsim/internal/domain"
)

// Policy is the order-policy collaborator: it decides what to trade. It is
// called synchronously at the post-bar boundary and may only emit intents
// that take effect starting the next bar. The core performs no sizing
// logic; intents are assumed already risk-sized.
//
// Void bars are invisible to policies. OnBarClose runs only for bars that
// carried tradable prices, so a policy counting its own calls observes
// fewer bars than the engine's bar index when the series contains gaps.
type Policy interface {
	// OnBarClose is called once per valid bar after accounting settles.
	OnBarClose(bar domain.Bar, pos *domain.Position) []domain.OrderIntent
}
