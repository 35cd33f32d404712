package match

import "sort"

// InitiativeEntry is one rolled initiative for an entity.
type InitiativeEntry struct {
	EntityID string
	Rolled   int
}

// BuildTurnOrder interleaves the two sides round-robin, attacker first in
// each pair, each side sorted by descending rolled initiative. The sort is
// stable so ties keep join order.
func BuildTurnOrder(attackers, defenders []InitiativeEntry) []string {
	byRoll := func(s []InitiativeEntry) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Rolled > s[j].Rolled })
	}
	byRoll(attackers)
	byRoll(defenders)

	order := make([]string, 0, len(attackers)+len(defenders))
	for i := 0; i < len(attackers) || i < len(defenders); i++ {
		if i < len(attackers) {
			order = append(order, attackers[i].EntityID)
		}
		if i < len(defenders) {
			order = append(order, defenders[i].EntityID)
		}
	}
	return order
}
