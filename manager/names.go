package manager

import "fmt"

// adjectives and animals back the deterministic memorable session name
// generator: "quiet-heron", "bold-otter-2" on collision. No external
// corpus precedent exists for this exact utility; kept small and
// self-contained rather than pulled in as a dependency.
var adjectives = []string{
	"quiet", "bold", "swift", "calm", "eager", "bright", "steady", "brisk",
	"keen", "nimble", "sturdy", "gentle", "vivid", "plucky", "sly", "tidy",
}

var animals = []string{
	"heron", "otter", "falcon", "lynx", "badger", "wren", "fox", "marten",
	"osprey", "ibex", "puffin", "marmot", "stoat", "tern", "gecko", "civet",
}

// nameSpace bounds the adjective/animal product; used to size the
// counter-driven generation sequence.
var nameSpace = len(adjectives) * len(animals)

// nameAt deterministically maps a non-negative counter to an
// adjective-animal pair, wrapping through every combination before a
// numeric suffix is appended by the caller on collision.
func nameAt(n int) string {
	idx := n % nameSpace
	adj := adjectives[idx/len(animals)]
	animal := animals[idx%len(animals)]
	return fmt.Sprintf("%s-%s", adj, animal)
}

// generateName returns the first name in the deterministic sequence
// (starting at seed) that taken reports as unused, appending a numeric
// suffix once every adjective-animal pair has been exhausted.
func generateName(seed int, taken func(name string) bool) string {
	for n := seed; n < seed+nameSpace; n++ {
		name := nameAt(n)
		if !taken(name) {
			return name
		}
	}
	for suffix := 2; ; suffix++ {
		name := fmt.Sprintf("%s-%d", nameAt(seed), suffix)
		if !taken(name) {
			return name
		}
	}
}
