package evmasm

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

// maxTags bounds the label id space of one assembly.
const maxTags = LabelID(0xffffffff)

// AppendCallback is the rewrite hook invoked once per item immediately
// before it is appended. It may emit a replacement fragment through the same
// assembly; returning true suppresses the original item. Returning an error
// aborts the append.
type AppendCallback func(item AssemblyItem) (bool, error)

// Assembly is one program under construction: the ordered item sequence plus
// the auxiliary tables (labels, interned data, sub-assemblies) and the
// running stack deposit. An Assembly is built incrementally, optionally
// rewritten in place by optimizer passes, then serialized; mutating it after
// serialization drops the cached result.
type Assembly struct {
	name string

	// Tag id 0 is reserved for the implicit exception destination.
	usedTags  LabelID
	namedTags map[string]LabelID

	items      []AssemblyItem
	data       map[common.Hash][]byte
	libraries  map[string]struct{}
	immutables map[string]struct{}
	subs       []*Assembly

	// Flat ids for sub-assemblies that are not direct children, keyed by
	// the structural path through the nesting. Direct children use their
	// index as id; deep paths allocate downward from math.MaxInt.
	subPathIDs map[string]int
	subIDPaths map[int][]int

	deposit int
	invalid bool

	currentLocation SourceLocation

	// Callback invoked by Append before an item is placed.
	Callback AppendCallback

	assembled *LinkerObject // cached serialization
}

// NewAssembly returns an empty assembly with the given internal name.
func NewAssembly(name string) *Assembly {
	return &Assembly{
		name:       name,
		usedTags:   1,
		namedTags:  make(map[string]LabelID),
		data:       make(map[common.Hash][]byte),
		libraries:  make(map[string]struct{}),
		immutables: make(map[string]struct{}),
		subPathIDs: make(map[string]int),
		subIDPaths: make(map[int][]int),
	}
}

// Name returns the internal name of the assembly.
func (a *Assembly) Name() string { return a.name }

// NewTag allocates a fresh label and returns its Tag item.
func (a *Assembly) NewTag() (*Tag, error) {
	id, err := a.newTagID()
	if err != nil {
		return nil, err
	}
	return &Tag{Ref: LabelRef{Sub: SubSelf, Label: id}}, nil
}

// NewPushTag allocates a fresh label and returns its push reference.
func (a *Assembly) NewPushTag() (*PushTag, error) {
	id, err := a.newTagID()
	if err != nil {
		return nil, err
	}
	return &PushTag{Ref: LabelRef{Sub: SubSelf, Label: id}}, nil
}

func (a *Assembly) newTagID() (LabelID, error) {
	if a.usedTags >= maxTags {
		return 0, ErrCapacityExceeded
	}
	id := a.usedTags
	a.usedTags++
	return id, nil
}

// NamedTag returns the tag registered under name, creating it on first use.
func (a *Assembly) NamedTag(name string) (*Tag, error) {
	if name == "" {
		return nil, fmt.Errorf("evmasm: empty named tag")
	}
	id, ok := a.namedTags[name]
	if !ok {
		var err error
		id, err = a.newTagID()
		if err != nil {
			return nil, err
		}
		a.namedTags[name] = id
	}
	return &Tag{Ref: LabelRef{Sub: SubSelf, Label: id}}, nil
}

// NewData interns data into the content-addressed table and returns the item
// pushing its offset. Equal content always maps to the same key, so repeated
// interning never grows the table.
func (a *Assembly) NewData(data []byte) *PushData {
	h := crypto.Keccak256Hash(data)
	if _, ok := a.data[h]; !ok {
		a.data[h] = append([]byte(nil), data...)
	}
	return &PushData{Hash: h}
}

// Data returns the interned content for a data hash.
func (a *Assembly) Data(h common.Hash) ([]byte, bool) {
	d, ok := a.data[h]
	return d, ok
}

// NewSub registers sub as a child of this assembly and returns the item
// pushing its code offset. The returned index is stable.
func (a *Assembly) NewSub(sub *Assembly) *PushSub {
	a.subs = append(a.subs, sub)
	return &PushSub{Sub: len(a.subs) - 1}
}

// Sub returns the child assembly at index i.
func (a *Assembly) Sub(i int) *Assembly { return a.subs[i] }

// NumSubs returns the number of direct child assemblies.
func (a *Assembly) NumSubs() int { return len(a.subs) }

// NewPushSubSize returns the item pushing the byte size of sub-assembly id.
func (a *Assembly) NewPushSubSize(id int) *PushSubSize {
	return &PushSubSize{Sub: id}
}

// NewPushLibraryAddress registers a library identifier and returns the item
// pushing its link-time address placeholder.
func (a *Assembly) NewPushLibraryAddress(name string) *PushLibraryAddress {
	a.libraries[name] = struct{}{}
	return &PushLibraryAddress{Name: name}
}

// NewPushImmutable registers an immutable identifier and returns the item
// loading its value.
func (a *Assembly) NewPushImmutable(name string) *PushImmutable {
	a.immutables[name] = struct{}{}
	return &PushImmutable{Name: name}
}

// NewImmutableAssignment registers an immutable identifier and returns the
// item assigning the stack top to it.
func (a *Assembly) NewImmutableAssignment(name string) *AssignImmutable {
	a.immutables[name] = struct{}{}
	return &AssignImmutable{Name: name}
}

// Append places item at the end of the sequence and applies its static stack
// effect to the deposit. An append that would drive the deposit negative
// fails without mutating the sequence. The rewrite callback, if set, runs
// first and may replace the item entirely.
func (a *Assembly) Append(item AssemblyItem) error {
	if a.Callback != nil {
		handled, err := a.Callback(item)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	next := a.deposit + item.StackEffect()
	if next < 0 {
		return fmt.Errorf("%w: %v at height %d", ErrNegativeDeposit, item, a.deposit)
	}
	item.setLocation(a.currentLocation)
	a.deposit = next
	a.items = append(a.items, item)
	a.assembled = nil
	return nil
}

// AppendOp appends a plain operation.
func (a *Assembly) AppendOp(op Instruction) error {
	return a.Append(NewOp(op))
}

// AppendProgramSize appends the item pushing the final assembled size.
func (a *Assembly) AppendProgramSize() error {
	return a.Append(&PushProgramSize{})
}

// Items returns the item sequence. The slice is owned by the assembly.
func (a *Assembly) Items() []AssemblyItem { return a.items }

// SetItems replaces the item sequence; used by optimizer passes rewriting
// the assembly in place. The cached serialization is dropped.
func (a *Assembly) SetItems(items []AssemblyItem) {
	a.items = items
	a.assembled = nil
}

// Deposit returns the tracked net stack-height change of the appended items.
func (a *Assembly) Deposit() int { return a.deposit }

// AdjustDeposit shifts the tracked deposit, failing if it would go negative.
func (a *Assembly) AdjustDeposit(diff int) error {
	if a.deposit+diff < 0 {
		return fmt.Errorf("%w: adjust %d at height %d", ErrNegativeDeposit, diff, a.deposit)
	}
	a.deposit += diff
	return nil
}

// SetDeposit resets the tracked deposit to an absolute height.
func (a *Assembly) SetDeposit(deposit int) error {
	if deposit < 0 {
		return fmt.Errorf("%w: set %d", ErrNegativeDeposit, deposit)
	}
	a.deposit = deposit
	return nil
}

// SetSourceLocation changes the annotation stamped on subsequently appended
// items.
func (a *Assembly) SetSourceLocation(loc SourceLocation) {
	a.currentLocation = loc
}

// CurrentSourceLocation returns the annotation for the next appended item.
func (a *Assembly) CurrentSourceLocation() SourceLocation {
	return a.currentLocation
}

// MarkInvalid poisons the assembly: any later Assemble call fails. The call
// is idempotent.
func (a *Assembly) MarkInvalid() {
	a.invalid = true
}

// EncodeSubPath maps a structural path through nested sub-assemblies to a
// flat id. Direct children keep their index; deeper paths are memoized under
// ids allocated downward from math.MaxInt so they can never collide with a
// child index.
func (a *Assembly) EncodeSubPath(path []int) (int, error) {
	if len(path) == 0 {
		return 0, fmt.Errorf("evmasm: empty sub-assembly path")
	}
	if len(path) == 1 {
		if path[0] >= len(a.subs) {
			return 0, fmt.Errorf("%w: index %d of %d", ErrUnknownSubProgram, path[0], len(a.subs))
		}
		return path[0], nil
	}
	key := pathKey(path)
	if id, ok := a.subPathIDs[key]; ok {
		return id, nil
	}
	id := math.MaxInt - len(a.subPathIDs)
	if id < len(a.subs) {
		return 0, ErrCapacityExceeded
	}
	a.subPathIDs[key] = id
	a.subIDPaths[id] = append([]int(nil), path...)
	return id, nil
}

// DecodeSubPath is the inverse of EncodeSubPath. Decoding an id that was
// never registered is a programming error.
func (a *Assembly) DecodeSubPath(id int) ([]int, error) {
	if id >= 0 && id < len(a.subs) {
		return []int{id}, nil
	}
	path, ok := a.subIDPaths[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownSubProgram, id)
	}
	return path, nil
}

// SubAssemblyByID resolves a flat sub-assembly id to the assembly it names.
func (a *Assembly) SubAssemblyByID(id int) (*Assembly, error) {
	path, err := a.DecodeSubPath(id)
	if err != nil {
		return nil, err
	}
	current := a
	for _, idx := range path {
		if idx >= len(current.subs) {
			return nil, fmt.Errorf("%w: path %v", ErrUnknownSubProgram, path)
		}
		current = current.subs[idx]
	}
	return current, nil
}

func pathKey(path []int) string {
	var b strings.Builder
	for i, p := range path {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%d", p)
	}
	return b.String()
}

// OptimiserSettings selects which rewriting passes Optimise composes. The
// assembly never decides on its own which passes are legal for the caller's
// deployment model.
type OptimiserSettings struct {
	IsCreation         bool
	RunJumpdestRemover bool
	RunPeephole        bool
	EVMVersion         EVMVersion
}

// Optimise rewrites the assembly, and all its sub-assemblies, with the
// passes selected in settings, iterating until no pass reports a change.
func (a *Assembly) Optimise(settings OptimiserSettings) error {
	return a.optimiseInternal(settings, nil)
}

func (a *Assembly) optimiseInternal(settings OptimiserSettings, tagsReferencedFromOutside map[LabelID]bool) error {
	for subID, sub := range a.subs {
		subSettings := settings
		subSettings.IsCreation = false
		external := ReferencedTags(a.items, subID)
		if err := sub.optimiseInternal(subSettings, external); err != nil {
			return err
		}
	}

	rounds := 0
	for changed := true; changed; {
		changed = false
		rounds++

		if settings.RunJumpdestRemover {
			remover := NewJumpdestRemover(a)
			removed, err := remover.Optimise(tagsReferencedFromOutside)
			if err != nil {
				return err
			}
			changed = changed || removed
		}

		if settings.RunPeephole {
			peephole := NewPeepholeOptimiser(a)
			for peephole.Optimise() {
				changed = true
				rounds++
				if rounds > 64000 {
					return fmt.Errorf("evmasm: peephole optimizer seems to be stuck on %q", a.name)
				}
			}
		}
	}
	log.Debug("Assembly optimized", "name", a.name, "rounds", rounds, "items", len(a.items))
	return nil
}

// String renders a readable listing of the assembly, its data section and
// its sub-assemblies.
func (a *Assembly) String() string {
	var b strings.Builder
	a.stream(&b, "")
	return b.String()
}

func (a *Assembly) stream(b *strings.Builder, prefix string) {
	for _, item := range a.items {
		if _, ok := item.(*Tag); ok {
			fmt.Fprintf(b, "%s%v\n", prefix, item)
		} else {
			fmt.Fprintf(b, "%s  %v\n", prefix, item)
		}
	}
	if len(a.data) > 0 || len(a.subs) > 0 {
		fmt.Fprintf(b, "%sstop\n", prefix)
	}
	if len(a.data) > 0 {
		hashes := make([]common.Hash, 0, len(a.data))
		for h := range a.data {
			hashes = append(hashes, h)
		}
		sort.Slice(hashes, func(i, j int) bool {
			return hashes[i].Cmp(hashes[j]) < 0
		})
		for _, h := range hashes {
			fmt.Fprintf(b, "%sdata_%x: %x\n", prefix, h[:4], a.data[h])
		}
	}
	for i, sub := range a.subs {
		fmt.Fprintf(b, "%ssub_%d: assembly %q {\n", prefix, i, sub.name)
		sub.stream(b, prefix+"    ")
		fmt.Fprintf(b, "%s}\n", prefix)
	}
}
