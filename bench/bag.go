package bench

import (
	"lukechampine.com/frand"

	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/piece"
	"github.com/domino14/tetron/state"
)

// Bag deals pieces the way the game does: each run of seven is a shuffled
// copy of all seven shapes.
type Bag struct {
	rng     *frand.RNG
	pending []piece.Piece
}

func NewBag(rng *frand.RNG) *Bag {
	return &Bag{rng: rng}
}

func (b *Bag) Next() piece.Piece {
	if len(b.pending) == 0 {
		b.pending = append(b.pending, piece.Shapes...)
		b.rng.Shuffle(len(b.pending), func(i, j int) {
			b.pending[i], b.pending[j] = b.pending[j], b.pending[i]
		})
	}
	p := b.pending[0]
	b.pending = b.pending[1:]
	return p
}

// Positions generates benchmark snapshots: a full preview from the bag,
// and up to maxGarbage rows of garbage with one hole each at the bottom.
type Positions struct {
	rng        *frand.RNG
	bag        *Bag
	maxGarbage int
	queue      []piece.Piece
}

func NewPositions(rng *frand.RNG, maxGarbage int) *Positions {
	if maxGarbage > engine.Height {
		maxGarbage = engine.Height
	}
	return &Positions{rng: rng, bag: NewBag(rng), maxGarbage: maxGarbage}
}

func (p *Positions) Next() *state.Snapshot {
	for len(p.queue) < engine.Slots {
		p.queue = append(p.queue, p.bag.Next())
	}
	snap := state.NewSnapshot()
	snap.Piece = piece.ToGame(p.queue[0])
	for _, q := range p.queue[1:] {
		snap.Queue = append(snap.Queue, piece.ToGame(q))
	}
	p.queue = p.queue[1:]

	rows := 0
	if p.maxGarbage > 0 {
		rows = p.rng.Intn(p.maxGarbage + 1)
	}
	for r := 0; r < rows; r++ {
		row := engine.Height - 1 - r
		hole := p.rng.Intn(engine.Width)
		for col := 0; col < engine.Width; col++ {
			snap.Set(col, row, col != hole)
		}
	}
	return snap
}
