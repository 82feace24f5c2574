package types

// Index is the parsed view of a file.  It is built once by the tokenizer and is
// read-only afterwards: all edits go through a changes.Table.
type Index struct {
	Root   *Block
	Blocks map[int]*Block // by start offset
	Header HeaderInfo

	// Checksummed files carry a trailing CRC which is not part of any block.
	Checksum bool

	varLocation map[string][]int
}

func NewIndex() *Index {
	return &Index{
		Blocks:      map[int]*Block{},
		varLocation: map[string][]int{},
	}
}

// PutVarLocation records that the block at offset holds a variable called name.
// Offsets are kept in file order with no repeats.
func (idx *Index) PutVarLocation(name string, offset int) {
	locs := idx.varLocation[name]
	if len(locs) > 0 && locs[len(locs)-1] == offset {
		return
	}
	idx.varLocation[name] = append(locs, offset)
}

// VarLocation returns the start offsets of every block holding name, in file order.
func (idx *Index) VarLocation(name string) []int {
	return idx.varLocation[name]
}

// VarNames lists every indexed variable name (unordered).
func (idx *Index) VarNames() []string {
	out := make([]string, 0, len(idx.varLocation))
	for k := range idx.varLocation {
		out = append(out, k)
	}
	return out
}

// NthBlockWith returns the nth (from 0) block containing a variable called name, or nil.
func (idx *Index) NthBlockWith(name string, n int) *Block {
	locs := idx.varLocation[name]
	if n < 0 || n >= len(locs) {
		return nil
	}
	return idx.Blocks[locs[n]]
}

// BlocksWith returns every block containing name, in file order.
func (idx *Index) BlocksWith(name string) []*Block {
	out := []*Block{}
	for _, o := range idx.varLocation[name] {
		out = append(out, idx.Blocks[o])
	}
	return out
}

// Var returns the single variable of the block at offset called (or aliased) name.
// A name that is absent or repeated inside the block is an error.
func (idx *Index) Var(offset int, name string) (*Variable, error) {
	b, ok := idx.Blocks[offset]
	if !ok {
		return nil, NewError(KindNotFound, "lookup", offset, "no block at offset")
	}
	found := b.Find(name)
	switch len(found) {
	case 0:
		return nil, NewError(KindNotFound, "lookup", offset, "no variable "+name)
	case 1:
		return found[0], nil
	}
	return nil, NewError(KindAmbiguous, "lookup", offset, "variable "+name+" is repeated, use its alias")
}

// FirstVar finds the first variable called name anywhere in the file.
func (idx *Index) FirstVar(name string) (*Variable, error) {
	b := idx.NthBlockWith(name, 0)
	if b == nil {
		return nil, NewError(KindNotFound, "lookup", -1, "no variable "+name)
	}
	return idx.Var(b.Start, name)
}

// Walk visits every block depth-first in file order, parents before children.
func (idx *Index) Walk(fn func(b *Block) error) error {
	var walk func(b *Block) error
	walk = func(b *Block) error {
		if err := fn(b); err != nil {
			return err
		}
		for _, c := range b.Children() {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(idx.Root)
}
