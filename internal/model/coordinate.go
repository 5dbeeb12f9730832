package model

import (
	"strconv"
	"strings"
)

// NumVariables is the number of indexed variable slots v0..v5 a task supports.
const NumVariables = 6

// Unset marks an unused coordinate slot (⊥ in the design notes).
const Unset = -1

// Coordinate is a fixed-length 6-tuple (c0..c5). cK == Unset iff variable vK
// is unused by the parent task.
type Coordinate [NumVariables]int

// IndexedKey renders the coordinate as the canonical six-part comma-joined
// string, each part decimal or empty for an unset slot.
func (c Coordinate) IndexedKey() string {
	parts := make([]string, NumVariables)
	for i, v := range c {
		if v == Unset {
			parts[i] = ""
		} else {
			parts[i] = strconv.Itoa(v)
		}
	}
	return strings.Join(parts, ",")
}

// ParseIndexedKey reverses IndexedKey, reproducing the original coordinate.
func ParseIndexedKey(key string) (Coordinate, bool) {
	parts := strings.Split(key, ",")
	if len(parts) != NumVariables {
		return Coordinate{}, false
	}
	var c Coordinate
	for i, p := range parts {
		if p == "" {
			c[i] = Unset
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Coordinate{}, false
		}
		c[i] = n
	}
	return c, true
}
