package gate

import (
	"context"

	"github.com/BatmanBruc/dmg-bot/internal/demo"
	"github.com/BatmanBruc/dmg-bot/internal/metrics"
	"github.com/BatmanBruc/dmg-bot/types"
)

// Unlimited is the Remaining value reported for entitled members.
const Unlimited = -1

type Reason string

const (
	ReasonNone          Reason = ""
	ReasonDemoExhausted Reason = "DEMO_EXHAUSTED"
)

type Decision struct {
	Allowed   bool
	IsDemo    bool
	Remaining int
	Reason    Reason
}

type EntitlementChecker interface {
	HasEntitlement(ctx context.Context, key types.AccountKey, member *types.MemberSnapshot) bool
}

type UsageReader interface {
	GetUsage(ctx context.Context, key types.AccountKey) types.DemoUsageRecord
}

var _ UsageReader = (*demo.Meter)(nil)

// Gate combines entitlement and demo usage into one decision. It never writes;
// callers running in demo mode increment the meter after success.
type Gate struct {
	entitlements EntitlementChecker
	usage        UsageReader
	metrics      *metrics.Metrics
}

func New(entitlements EntitlementChecker, usage UsageReader, m *metrics.Metrics) *Gate {
	return &Gate{entitlements: entitlements, usage: usage, metrics: m}
}

func (g *Gate) Evaluate(ctx context.Context, key types.AccountKey, member *types.MemberSnapshot) Decision {
	if g.entitlements.HasEntitlement(ctx, key, member) {
		g.metrics.GateDecision("entitled")
		return Decision{Allowed: true, IsDemo: false, Remaining: Unlimited}
	}

	usage := g.usage.GetUsage(ctx, key)
	if usage.Used >= usage.Max {
		g.metrics.GateDecision("blocked")
		return Decision{Allowed: false, IsDemo: true, Remaining: 0, Reason: ReasonDemoExhausted}
	}
	g.metrics.GateDecision("demo")
	return Decision{Allowed: true, IsDemo: true, Remaining: usage.Max - usage.Used}
}
