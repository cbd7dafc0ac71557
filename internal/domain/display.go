package domain

import (
	"fmt"
	"sort"
)

// DisplayCode builds the call code staff read out: slot index followed by a
// letter for the token's creation-order rank within the slot (3A, 3B, ...).
// Recomputed on every read, never stored.
func DisplayCode(slotIndex, position int) string {
	if position < 0 {
		position = 0
	}
	return fmt.Sprintf("%d%c", slotIndex, 'A'+rune(position))
}

// GroupBySlot buckets tokens by slot index and orders each bucket by creation
// time ascending, using the server-assigned sequence as tiebreaker so the
// order is total.
func GroupBySlot(tokens []Token) map[int][]Token {
	groups := make(map[int][]Token)
	for _, t := range tokens {
		groups[t.SlotIndex] = append(groups[t.SlotIndex], t)
	}
	for idx := range groups {
		group := groups[idx]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].Seq < group[j].Seq
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
	}
	return groups
}

// PositionInSlot returns the creation-order rank of the token with the given
// id inside its slot group, or -1 when absent.
func PositionInSlot(group []Token, id string) int {
	for i, t := range group {
		if t.ID == id {
			return i
		}
	}
	return -1
}
