package resourcemodel

// CompoundElementTable is the compiled-in compound -> element ppm table
// used by infer_element_ppm (spec 3). It is data, not configuration: the
// set of compounds the simulation understands is part of its rules, the
// same way the teacher's block/registry.go compiles in block behaviors.
var CompoundElementTable = map[CompoundKind]map[Element]uint32{
	"iron_nickel_alloy": {
		"Fe": 880_000,
		"Ni": 100_000,
		"Co": 20_000,
	},
	"silicate_rock": {
		"O":  450_000,
		"Si": 300_000,
		"Mg": 180_000,
		"Fe": 70_000,
	},
	"carbonaceous_matrix": {
		"C": 500_000,
		"O": 300_000,
		"H": 150_000,
		"N": 50_000,
	},
	"water_ice": {
		"O": 888_000,
		"H": 112_000,
	},
	"regolith_dust": {
		"O":  400_000,
		"Si": 250_000,
		"Al": 150_000,
		"Fe": 200_000,
	},
}

// CompoundKinds returns the registry's keys in a fixed declaration order —
// generation code must never range over the map directly, to keep
// candidate sampling platform-independent.
func CompoundKinds() []CompoundKind {
	return []CompoundKind{
		"iron_nickel_alloy",
		"silicate_rock",
		"carbonaceous_matrix",
		"water_ice",
		"regolith_dust",
	}
}

// InferElementPpm converts a block's compound composition (compound ->
// ppm of block mass) into an element composition (element -> ppm of
// block mass), per spec 3's infer_element_ppm.
func InferElementPpm(compounds map[CompoundKind]uint32) map[Element]uint32 {
	out := make(map[Element]uint32)
	for _, ck := range sortedCompoundKeys(compounds) {
		compoundPpm := compounds[ck]
		elementTable, known := CompoundElementTable[ck]
		if !known {
			continue
		}
		for _, el := range sortedElementKeys(elementTable) {
			elPpmInCompound := elementTable[el]
			// element_ppm_of_block += compound_ppm * element_ppm_in_compound / PpmMax
			contribution := uint64(compoundPpm) * uint64(elPpmInCompound) / uint64(PpmMax)
			out[el] += uint32(contribution)
		}
	}
	return out
}

func sortedCompoundKeys(m map[CompoundKind]uint32) []CompoundKind {
	out := make([]CompoundKind, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	insertionSortStrings(out)
	return out
}

func sortedElementKeys(m map[Element]uint32) []Element {
	out := make([]Element, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	insertionSortElements(out)
	return out
}

// insertionSortStrings/insertionSortElements avoid pulling in sort.Slice
// closures at every call site for these tiny (<10 element) maps; any
// stable, deterministic order works, so simplicity wins here.
func insertionSortStrings(s []CompoundKind) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func insertionSortElements(s []Element) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
