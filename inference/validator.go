package inference

import "github.com/sarchlab/bankfinder/addrspace"

// Validate reports the entries that did not get a bank.
func (r *Run) Validate() []int {
	r.unassigned = r.unassigned[:0]

	for i := 0; i < r.table.Len(); i++ {
		entry := r.table.Entry(i)
		if entry.BankID != addrspace.Unassigned {
			continue
		}

		r.unassigned = append(r.unassigned, i)
		r.invoke(HookPosUnassigned, *entry, nil)
	}

	return r.unassigned
}
