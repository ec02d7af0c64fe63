/*
Package tasks backs the loop's completion verification. A completion
promise in agent output is necessary but not sufficient; the loop also
requires that no work remains open, judged by one of two sources:

 1. a markdown checklist file where "- [ ]" marks an open item, or
 2. a sqlite task store where tasks carry an open/done state.

The file or store is the sole source of truth. The loop never infers
completion from agent output alone.
*/
package tasks

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ItemState is a checklist item's state.
type ItemState string

const (
	StateOpen ItemState = "open"
	StateDone ItemState = "done"
)

// Item is one top-level checkbox entry in a checklist file. Subtask
// checkboxes nested under an item count toward its step totals; an item
// with subtasks is done only when every subtask is checked.
type Item struct {
	Title      string
	Section    string
	Index      int
	StepsTotal int
	StepsDone  int
	State      ItemState
}

var (
	sectionPattern = regexp.MustCompile(`^#{1,6}\s*(.*)`)
	titlePattern   = regexp.MustCompile(`- \[[ xX]\]\s+(?:\*\*(.+?)\*\*|(.+))`)
)

// ParseChecklist reads a checklist and returns its top-level items in
// file order.
func ParseChecklist(r io.Reader) ([]*Item, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading checklist: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	var items []*Item
	section := ""
	index := 0

	i := 0
	for i < len(lines) {
		line := lines[i]

		if m := sectionPattern.FindStringSubmatch(line); m != nil && strings.HasPrefix(line, "#") {
			section = strings.TrimSpace(m[1])
			i++
			continue
		}

		if !isTopLevelItem(line) {
			i++
			continue
		}

		index++
		item := &Item{Section: section, Index: index}
		item.Title = itemTitle(line)
		topChecked := strings.HasPrefix(strings.TrimLeft(line, " \t"), "- [x]") ||
			strings.HasPrefix(strings.TrimLeft(line, " \t"), "- [X]")

		// Scan subtasks until the next top-level item or section.
		i++
		for i < len(lines) {
			next := lines[i]
			switch {
			case isSubItem(next):
				item.StepsTotal++
				if subItemChecked(next) {
					item.StepsDone++
				}
				i++
			case isTopLevelItem(next) || strings.HasPrefix(next, "#"):
				goto scanned
			case strings.TrimSpace(next) == "":
				i++
			case !isIndented(next):
				goto scanned
			default:
				// Indented prose under the item.
				i++
			}
		}
	scanned:
		if item.StepsTotal > 0 {
			if item.StepsDone == item.StepsTotal {
				item.State = StateDone
			} else {
				item.State = StateOpen
			}
		} else if topChecked {
			item.State = StateDone
		} else {
			item.State = StateOpen
		}
		items = append(items, item)
	}

	return items, nil
}

// OpenCount returns how many items are still open.
func OpenCount(items []*Item) int {
	n := 0
	for _, it := range items {
		if it.State == StateOpen {
			n++
		}
	}
	return n
}

func isTopLevelItem(line string) bool {
	if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
		return false
	}
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "- [") || len(trimmed) < 6 {
		return false
	}
	c := trimmed[3]
	return (c == 'x' || c == 'X' || c == ' ') && trimmed[4] == ']' && trimmed[5] == ' '
}

func isSubItem(line string) bool {
	if !isIndented(line) {
		return false
	}
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "- [") || len(trimmed) < 6 {
		return false
	}
	c := trimmed[3]
	return (c == 'x' || c == 'X' || c == ' ') && trimmed[4] == ']' && trimmed[5] == ' '
}

func subItemChecked(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "- [x]") || strings.HasPrefix(trimmed, "- [X]")
}

func isIndented(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

func itemTitle(line string) string {
	if m := titlePattern.FindStringSubmatch(line); m != nil {
		if m[1] != "" {
			return strings.TrimSpace(m[1])
		}
		return strings.TrimSpace(m[2])
	}
	return strings.TrimSpace(line)
}
