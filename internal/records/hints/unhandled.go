package hints

import "sort"

// Unhandled tracks which hints a translator has not consumed yet.
//
// Translators call Handle for every hint they read, whether or not they can
// honor its value. Whatever remains afterwards was silently ignored and is
// reported by Enforce.
type Unhandled map[Name]struct{}

// NewUnhandled returns a set holding every recognized hint name.
func NewUnhandled() Unhandled {
	u := make(Unhandled, len(definitions))
	for _, d := range definitions {
		u[d.Name] = struct{}{}
	}
	return u
}

// Handle marks names as consumed.
func (u Unhandled) Handle(names ...Name) {
	for _, n := range names {
		delete(u, n)
	}
}

// Remaining returns the unconsumed names, sorted.
func (u Unhandled) Remaining() []Name {
	out := make([]Name, 0, len(u))
	for n := range u {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Consumed returns the names no longer in u, sorted.
func (u Unhandled) Consumed() []Name {
	var out []Name
	for _, n := range Names() {
		if _, ok := u[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Enforce reports every remaining hint through p.
func (u Unhandled) Enforce(p Policy, v Validated) error {
	for _, n := range u.Remaining() {
		if err := p.CantHandle(n, v.Value(n), "hint not understood by this engine"); err != nil {
			return err
		}
	}
	return nil
}
