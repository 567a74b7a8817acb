package fm

import "fmt"

// NumOperators is the fixed operator index space per voice:
// 0=Carrier, 1=A, 2=B1, 3=B2.
const NumOperators = 4

// Connection routes one operator's output into another's phase modulation
// input with a weight. Immutable once the algorithm is built.
type Connection struct {
	Source      int
	Destination int
	Amount      float64
}

// Algorithm is a static acyclic graph of weighted operator connections plus
// an authored carrier list. Carriers are never inferred from graph shape.
// Algorithms are shared read-only across voices.
type Algorithm struct {
	ID          int
	Name        string
	Connections []Connection
	Carriers    []int
}

// Validate checks the index space and the acyclicity discipline: operators are
// evaluated modulators-first (index 3 down to 0), so every connection must
// flow from a higher index to a lower one. Self-feedback is an operator-level
// property, never a connection.
func (a *Algorithm) Validate() error {
	if len(a.Carriers) == 0 {
		return fmt.Errorf("algorithm %d (%s): no carriers", a.ID, a.Name)
	}
	for _, c := range a.Carriers {
		if c < 0 || c >= NumOperators {
			return fmt.Errorf("algorithm %d (%s): carrier index %d out of range", a.ID, a.Name, c)
		}
	}
	for _, cn := range a.Connections {
		if cn.Source < 0 || cn.Source >= NumOperators || cn.Destination < 0 || cn.Destination >= NumOperators {
			return fmt.Errorf("algorithm %d (%s): connection %d->%d out of range", a.ID, a.Name, cn.Source, cn.Destination)
		}
		if cn.Source <= cn.Destination {
			return fmt.Errorf("algorithm %d (%s): connection %d->%d not modulator-first", a.ID, a.Name, cn.Source, cn.Destination)
		}
	}
	return nil
}

// modSource is a compiled modulation input for one destination operator.
type modSource struct {
	source int
	amount float64
}

// compile groups connections by destination for cheap per-sample evaluation.
func (a *Algorithm) compile() [NumOperators][]modSource {
	var in [NumOperators][]modSource
	for _, cn := range a.Connections {
		in[cn.Destination] = append(in[cn.Destination], modSource{source: cn.Source, amount: cn.Amount})
	}
	return in
}

// Algorithms is the built-in bank, ids 1..8. ID 1 is the two-operator
// "Simple FM" patch (A modulating the carrier).
var Algorithms = []Algorithm{
	{
		ID: 1, Name: "Simple FM",
		Connections: []Connection{{Source: 1, Destination: 0, Amount: 1}},
		Carriers:    []int{0},
	},
	{
		ID: 2, Name: "Serial 3",
		Connections: []Connection{
			{Source: 2, Destination: 1, Amount: 1},
			{Source: 1, Destination: 0, Amount: 1},
		},
		Carriers: []int{0},
	},
	{
		ID: 3, Name: "Full Stack",
		Connections: []Connection{
			{Source: 3, Destination: 2, Amount: 1},
			{Source: 2, Destination: 1, Amount: 1},
			{Source: 1, Destination: 0, Amount: 1},
		},
		Carriers: []int{0},
	},
	{
		ID: 4, Name: "Parallel Mod",
		Connections: []Connection{
			{Source: 1, Destination: 0, Amount: 1},
			{Source: 2, Destination: 0, Amount: 1},
		},
		Carriers: []int{0},
	},
	{
		ID: 5, Name: "Two Pairs",
		Connections: []Connection{
			{Source: 1, Destination: 0, Amount: 1},
			{Source: 3, Destination: 2, Amount: 1},
		},
		Carriers: []int{0, 2},
	},
	{
		ID: 6, Name: "Triple Mod",
		Connections: []Connection{
			{Source: 1, Destination: 0, Amount: 1},
			{Source: 2, Destination: 0, Amount: 1},
			{Source: 3, Destination: 0, Amount: 1},
		},
		Carriers: []int{0},
	},
	{
		ID: 7, Name: "Stacked Pair",
		Connections: []Connection{
			{Source: 3, Destination: 2, Amount: 1},
			{Source: 2, Destination: 1, Amount: 1},
		},
		Carriers: []int{0, 1},
	},
	{
		ID: 8, Name: "All Parallel",
		Carriers: []int{0, 1, 2, 3},
	},
}

// AlgorithmByID returns the bank entry for a 1-based id, clamping out-of-range
// ids to the nearest valid one.
func AlgorithmByID(id int) *Algorithm {
	if id < 1 {
		id = 1
	}
	if id > len(Algorithms) {
		id = len(Algorithms)
	}
	return &Algorithms[id-1]
}
