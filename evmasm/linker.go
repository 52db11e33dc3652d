package evmasm

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// LinkerObject is the serialized form of an assembly: flat bytecode plus the
// tables a linker needs to patch symbolic references. Reference slots use a
// fixed four-byte width, matching the 32-bit label id space; production
// byte-exact packing is out of scope here.
type LinkerObject struct {
	Bytecode []byte

	// TagPositions maps every placed label to its byte offset.
	TagPositions map[LabelID]int
	// LinkReferences maps placeholder offsets to the library identifier
	// to be patched in at deploy time.
	LinkReferences map[int]string
	// ImmutableReferences maps immutable identifiers to the offsets that
	// read or assign them.
	ImmutableReferences map[string][]int

	// Placement of the embedded sub-assemblies, kept so references
	// through deeper nesting levels can be resolved.
	subStarts  []int
	subObjects []*LinkerObject
}

// subStart resolves a structural path to the byte offset of the named
// sub-assembly inside this object's bytecode.
func (o *LinkerObject) subStart(path []int) (int, error) {
	offset := 0
	cur := o
	for _, idx := range path {
		if idx < 0 || idx >= len(cur.subStarts) {
			return 0, fmt.Errorf("%w: path %v", ErrUnknownSubProgram, path)
		}
		offset += cur.subStarts[idx]
		cur = cur.subObjects[idx]
	}
	return offset, nil
}

type patchKind int

const (
	patchTag patchKind = iota
	patchData
	patchSubOffset
	patchSubSize
	patchProgramSize
)

type patch struct {
	at   int
	kind patchKind
	ref  LabelRef
	hash common.Hash
	sub  int
}

// Assemble serializes the assembly and its sub-assemblies. The result is
// cached until the next mutation; assembling an invalidated assembly fails.
// Every local PushTag must resolve to a placed Tag, and every foreign one to
// a tag inside the named sub-assembly.
func (a *Assembly) Assemble() (*LinkerObject, error) {
	if a.invalid {
		return nil, fmt.Errorf("%w: %q", ErrAssemblyInvalidated, a.name)
	}
	if a.assembled != nil {
		return a.assembled, nil
	}

	subObjects := make([]*LinkerObject, len(a.subs))
	for i, sub := range a.subs {
		obj, err := sub.Assemble()
		if err != nil {
			return nil, err
		}
		subObjects[i] = obj
	}

	obj := &LinkerObject{
		TagPositions:        make(map[LabelID]int),
		LinkReferences:      make(map[int]string),
		ImmutableReferences: make(map[string][]int),
	}
	var patches []patch

	emitRef := func(p patch) {
		obj.Bytecode = append(obj.Bytecode, byte(PUSH4))
		p.at = len(obj.Bytecode)
		obj.Bytecode = append(obj.Bytecode, 0, 0, 0, 0)
		patches = append(patches, p)
	}

	for _, item := range a.items {
		switch it := item.(type) {
		case *Operation:
			obj.Bytecode = append(obj.Bytecode, byte(it.Op))
		case *Push:
			val := it.Value.Bytes()
			if len(val) == 0 {
				val = []byte{0}
			}
			pushOp, err := PushInstruction(len(val))
			if err != nil {
				return nil, err
			}
			obj.Bytecode = append(obj.Bytecode, byte(pushOp))
			obj.Bytecode = append(obj.Bytecode, val...)
		case *PushTag:
			emitRef(patch{kind: patchTag, ref: it.Ref})
		case *Tag:
			if it.Ref.Foreign() {
				return nil, fmt.Errorf("%w: tag %v placed in %q", ErrInvalidLabelUsage, it.Ref, a.name)
			}
			obj.TagPositions[it.Ref.Label] = len(obj.Bytecode)
			obj.Bytecode = append(obj.Bytecode, byte(JUMPDEST))
		case *PushData:
			emitRef(patch{kind: patchData, hash: it.Hash})
		case *PushSub:
			emitRef(patch{kind: patchSubOffset, sub: it.Sub})
		case *PushSubSize:
			emitRef(patch{kind: patchSubSize, sub: it.Sub})
		case *PushProgramSize:
			emitRef(patch{kind: patchProgramSize})
		case *PushLibraryAddress:
			obj.Bytecode = append(obj.Bytecode, byte(PUSH20))
			obj.LinkReferences[len(obj.Bytecode)] = it.Name
			obj.Bytecode = append(obj.Bytecode, make([]byte, 20)...)
		case *PushImmutable:
			obj.Bytecode = append(obj.Bytecode, byte(PUSH32))
			obj.ImmutableReferences[it.Name] = append(obj.ImmutableReferences[it.Name], len(obj.Bytecode))
			obj.Bytecode = append(obj.Bytecode, make([]byte, 32)...)
		case *AssignImmutable:
			// The creation-time store sequence is materialized by the
			// linker; here the value and offset slots are consumed and
			// the site recorded.
			obj.ImmutableReferences[it.Name] = append(obj.ImmutableReferences[it.Name], len(obj.Bytecode))
			obj.Bytecode = append(obj.Bytecode, byte(POP), byte(POP))
		case *UndefinedItem:
			return nil, fmt.Errorf("evmasm: cannot assemble undefined item in %q", a.name)
		default:
			return nil, fmt.Errorf("evmasm: cannot assemble item %v", item)
		}
	}

	// Data section: interned blobs in deterministic order, then the
	// sub-assemblies.
	dataOffsets := make(map[common.Hash]int)
	hashes := make([]common.Hash, 0, len(a.data))
	for h := range a.data {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Cmp(hashes[j]) < 0 })
	for _, h := range hashes {
		dataOffsets[h] = len(obj.Bytecode)
		obj.Bytecode = append(obj.Bytecode, a.data[h]...)
	}
	subOffsets := make([]int, len(a.subs))
	for i, sub := range subObjects {
		subOffsets[i] = len(obj.Bytecode)
		obj.Bytecode = append(obj.Bytecode, sub.Bytecode...)
	}
	obj.subStarts = subOffsets
	obj.subObjects = subObjects

	for _, p := range patches {
		var value int
		switch p.kind {
		case patchTag:
			var pos int
			var ok bool
			if p.ref.Foreign() {
				if p.ref.Sub < len(subObjects) {
					pos, ok = subObjects[p.ref.Sub].TagPositions[p.ref.Label]
				}
			} else {
				pos, ok = obj.TagPositions[p.ref.Label]
			}
			if !ok {
				return nil, fmt.Errorf("%w: tag %v in %q", ErrUnresolvedTag, p.ref, a.name)
			}
			value = pos
		case patchData:
			pos, ok := dataOffsets[p.hash]
			if !ok {
				return nil, fmt.Errorf("evmasm: data %x not interned in %q", p.hash[:4], a.name)
			}
			value = pos
		case patchSubOffset:
			path, err := a.DecodeSubPath(p.sub)
			if err != nil {
				return nil, err
			}
			value, err = obj.subStart(path)
			if err != nil {
				return nil, err
			}
		case patchSubSize:
			sub, err := a.SubAssemblyByID(p.sub)
			if err != nil {
				return nil, err
			}
			subObj, err := sub.Assemble()
			if err != nil {
				return nil, err
			}
			value = len(subObj.Bytecode)
		case patchProgramSize:
			value = len(obj.Bytecode)
		}
		binary.BigEndian.PutUint32(obj.Bytecode[p.at:], uint32(value))
	}

	a.assembled = obj
	return obj, nil
}
