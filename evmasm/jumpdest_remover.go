package evmasm

import "fmt"

// JumpdestRemover removes Tag items that nothing references. A tag survives
// if a PushTag in the same program names it, or if it appears in the set of
// labels referenced from an enclosing assembly.
type JumpdestRemover struct {
	asm *Assembly
}

// NewJumpdestRemover returns a remover operating on asm's item sequence.
func NewJumpdestRemover(asm *Assembly) *JumpdestRemover {
	return &JumpdestRemover{asm: asm}
}

// Optimise drops every unreferenced tag and reports whether anything was
// removed. tagsReferencedFromOutside lists local labels pushed by an
// enclosing assembly, which must survive regardless of local references.
func (j *JumpdestRemover) Optimise(tagsReferencedFromOutside map[LabelID]bool) (bool, error) {
	items := j.asm.Items()
	references := ReferencedTags(items, SubSelf)
	for id := range tagsReferencedFromOutside {
		references[id] = true
	}

	// Filter into a fresh slice so the assembly keeps its original
	// sequence when a malformed tag aborts the pass.
	kept := make([]AssemblyItem, 0, len(items))
	for _, item := range items {
		tag, ok := item.(*Tag)
		if !ok {
			kept = append(kept, item)
			continue
		}
		if tag.Ref.Foreign() {
			// Labels denote code positions within exactly one
			// program; a tag can never select a sub-assembly.
			return false, fmt.Errorf("%w: tag %v placed locally", ErrInvalidLabelUsage, tag.Ref)
		}
		if references[tag.Ref.Label] {
			kept = append(kept, item)
		}
	}
	removed := len(kept) != len(items)
	if removed {
		j.asm.SetItems(kept)
	}
	return removed, nil
}

// ReferencedTags collects every label that a PushTag in items references
// inside program sub. Pass SubSelf for labels of the program holding the
// items, or a child index for labels pushed into that sub-assembly.
func ReferencedTags(items []AssemblyItem, sub int) map[LabelID]bool {
	refs := make(map[LabelID]bool)
	for _, item := range items {
		push, ok := item.(*PushTag)
		if !ok {
			continue
		}
		if push.Ref.Sub == sub {
			refs[push.Ref.Label] = true
		}
	}
	return refs
}
