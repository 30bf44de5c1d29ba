package signaling

// scanOrder implements spec §4.4 "Scan order": a premium candidate with a
// specific preference scans that gender's pool first, then "any".
//
// Everyone else scans the pool named after their own gender first, then
// "any", then the remaining two genders. A pool is named for the gender a
// premium waiter is seeking, so checking the candidate's own-gender pool
// before "any" lets a waiting premium's specific preference win over a
// same-round "any"-pool hit — see DESIGN.md's Open Question on §4.4 vs the
// §8 Scenario 2 worked example, which this order is chosen to match.
func scanOrder(candidatePref, candidateGender Gender) []Gender {
	if candidatePref != GenderAny {
		return []Gender{candidatePref, GenderAny}
	}
	if !candidateGender.Valid() {
		return []Gender{GenderAny, GenderMale, GenderFemale, GenderOther}
	}
	order := []Gender{candidateGender, GenderAny}
	for _, g := range []Gender{GenderMale, GenderFemale, GenderOther} {
		if g != candidateGender {
			order = append(order, g)
		}
	}
	return order
}

// eligible implements spec §4.4 eligibility rules 1-3. Rule 4 (tier-based
// downgrade of a free user's preference) is applied inside eligible itself:
// both sides' preferences are read through effectivePreference, so a free
// user's stated preference never excludes anyone.
func eligible(candidate, waiter *User) bool {
	if waiter.ConnID == candidate.ConnID {
		return false
	}
	if cPref := effectivePreference(candidate); cPref != GenderAny && waiter.Gender != cPref {
		return false
	}
	if wPref := effectivePreference(waiter); wPref != GenderAny && candidate.Gender != wPref {
		return false
	}
	return true
}

// findMatch is the single Matcher entry point (C3), used both for a fresh
// join-queue and for the Session Supervisor's mandatory re-queue of an
// abandoned partner (spec §9 "single matcher entry point"). It scans qs in
// the pool order scanOrder returns and, on success, removes the matched
// waiter from its pool (oldest-first within a pool) and returns it. It
// never mutates candidate or the returned waiter's State/Partner fields —
// that is the caller's job, inside the same locked critical section.
func findMatch(qs *QueueSet, candidate *User) *User {
	cPref := effectivePreference(candidate)
	for _, g := range scanOrder(cPref, candidate.Gender) {
		if w := qs.scanPool(g, func(w *User) bool { return eligible(candidate, w) }); w != nil {
			return w
		}
	}
	return nil
}
