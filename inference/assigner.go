package inference

import "fmt"

// Assign gives every master the next bank ID and propagates it to the
// master's siblings.
func (r *Run) Assign() error {
	r.banks = r.banks[:0]

	for i := 0; i < r.table.Len(); i++ {
		master := r.table.Entry(i)
		if master.Associated() {
			continue
		}

		if len(r.banks) >= r.maxBanks {
			return fmt.Errorf(
				"inference: entry %d (0x%x) would be master of bank %d, "+
					"only %d banks allowed: %w",
				i, master.PhysAddr, len(r.banks), r.maxBanks, ErrBankOverflow)
		}

		bank := Bank{
			ID:       len(r.banks),
			Master:   i,
			Siblings: r.siblingsOf(i),
		}

		master.BankID = bank.ID
		for _, s := range bank.Siblings {
			r.table.Entry(s).BankID = bank.ID
		}

		r.banks = append(r.banks, bank)
		r.invoke(HookPosBankAssigned, bank, nil)
	}

	return nil
}

func (r *Run) siblingsOf(master int) []int {
	c := r.clusterOf[master]
	if c < 0 {
		return nil
	}

	return r.clusters[c].Siblings
}
