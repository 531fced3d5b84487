package shared

// Actor identifies who caused a stock mutation. Automated flows pass an
// explicit actor value instead of relying on an implicit global principal, so
// ledger attribution survives multi-tenant or audited deployments.
type Actor struct {
	ID   int64
	Name string
}

// Valid reports whether the actor carries enough identity to attribute a
// ledger row.
func (a Actor) Valid() bool {
	return a.Name != ""
}

// ReconcilerActor is used by the background compensation worker.
func ReconcilerActor() Actor {
	return Actor{Name: "reconciler"}
}
