package core

// JarShare is one jar's slice of a split income deposit.
type JarShare struct {
	JarID  int64
	Amount Money
}

// SplitByPercentage distributes amount across the given jars in
// proportion to their percentages, normalized over the allocated total
// so the shares always sum to the amount exactly.
//
// The arithmetic runs in integer basis points: each jar gets the floor
// of its proportional share and the leftover cents go to the jar with
// the largest percentage, ties broken by lowest jar ID, which makes
// the split deterministic. Inactive and zero-percentage jars get
// nothing. With no allocated jars at all the split is empty.
func SplitByPercentage(jars []Jar, amount Money) ([]JarShare, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}

	type slot struct {
		jarID int64
		bp    int64
	}
	var slots []slot
	var totalBp int64
	for _, j := range jars {
		if !j.Active {
			continue
		}
		bp := j.BasisPoints()
		if bp <= 0 {
			continue
		}
		slots = append(slots, slot{jarID: j.ID, bp: bp})
		totalBp += bp
	}
	if totalBp == 0 {
		return nil, nil
	}

	shares := make([]JarShare, len(slots))
	var distributed int64
	largest := 0
	for i, s := range slots {
		cents := amount.Cents * s.bp / totalBp
		shares[i] = JarShare{JarID: s.jarID, Amount: Money{Cents: cents}}
		distributed += cents
		if s.bp > slots[largest].bp ||
			(s.bp == slots[largest].bp && s.jarID < slots[largest].jarID) {
			largest = i
		}
	}

	// Rounding remainder goes to the largest-percentage jar so no
	// cent leaks.
	if rest := amount.Cents - distributed; rest > 0 {
		shares[largest].Amount.Cents += rest
	}
	return shares, nil
}

// TotalPercentageBp sums the basis points of the active jars.
func TotalPercentageBp(jars []Jar) int64 {
	var total int64
	for _, j := range jars {
		if j.Active {
			total += j.BasisPoints()
		}
	}
	return total
}
