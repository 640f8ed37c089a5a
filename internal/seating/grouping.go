package seating

import "wedding-seating/internal/models"

// FilterEligible keeps guests whose RSVP is accepted, in input order.
func FilterEligible(guests []models.Guest) []models.Guest {
	eligible := make([]models.Guest, 0, len(guests))
	for _, g := range guests {
		if g.RSVPStatus == models.RSVPAccepted {
			eligible = append(eligible, g)
		}
	}
	return eligible
}

// IneligibleSeated returns guests that hold a table assignment without having
// accepted. These are data defects; nothing here clears them.
func IneligibleSeated(guests []models.Guest) []models.Guest {
	var defects []models.Guest
	for _, g := range guests {
		if g.RSVPStatus != models.RSVPAccepted && g.IsSeated() {
			defects = append(defects, g)
		}
	}
	return defects
}

type groupKey struct {
	side         models.Side
	relationship string
}

// GroupGuests partitions guests by side and relationship so families stay
// together. Groups come out in order of first appearance and members keep
// their input order. Without respectRelationships every guest is a group of
// their own.
func GroupGuests(guests []models.Guest, respectRelationships bool) []models.GuestGroup {
	groups := make([]models.GuestGroup, 0)

	if !respectRelationships {
		for _, g := range guests {
			groups = append(groups, models.GuestGroup{
				Side:         g.Side,
				Relationship: g.Relationship,
				Members:      []models.Guest{g},
			})
		}
		return groups
	}

	index := make(map[groupKey]int)
	for _, g := range guests {
		key := groupKey{side: g.Side, relationship: normalizeRelationship(g.Relationship)}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, models.GuestGroup{Side: g.Side, Relationship: g.Relationship})
		}
		groups[i].Members = append(groups[i].Members, g)
	}
	return groups
}

// splitGroup breaks a group into one party per guest. A guest and their
// plus-ones are never separated.
func splitGroup(group models.GuestGroup) []models.GuestGroup {
	parts := make([]models.GuestGroup, 0, len(group.Members))
	for _, m := range group.Members {
		parts = append(parts, models.GuestGroup{
			Side:         group.Side,
			Relationship: group.Relationship,
			Members:      []models.Guest{m},
		})
	}
	return parts
}
