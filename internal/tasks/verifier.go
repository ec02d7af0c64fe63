package tasks

import (
	"fmt"
	"os"
)

// Verifier is the "all work done" predicate the loop consults before
// honoring a completion promise.
type Verifier interface {
	AllWorkDone() (bool, error)
}

// ChecklistVerifier judges completion from a markdown checklist file. A
// missing file means no checklist was ever created, which counts as no
// open work.
type ChecklistVerifier struct {
	Path string
}

func (v *ChecklistVerifier) AllWorkDone() (bool, error) {
	f, err := os.Open(v.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to open checklist: %w", err)
	}
	defer f.Close()

	items, err := ParseChecklist(f)
	if err != nil {
		return false, err
	}
	return OpenCount(items) == 0, nil
}

// StoreVerifier judges completion from the sqlite task store.
type StoreVerifier struct {
	Store *Store
}

func (v *StoreVerifier) AllWorkDone() (bool, error) {
	open, err := v.Store.OpenTasks()
	if err != nil {
		return false, err
	}
	return open == 0, nil
}
