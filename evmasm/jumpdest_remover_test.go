package evmasm

import (
	"errors"
	"testing"
)

func countTags(items []AssemblyItem) map[LabelID]bool {
	tags := make(map[LabelID]bool)
	for _, item := range items {
		if tag, ok := item.(*Tag); ok {
			tags[tag.Ref.Label] = true
		}
	}
	return tags
}

func TestJumpdestRemover_DropsUnreferencedTags(t *testing.T) {
	a := NewAssembly("test")
	t1 := mustNewTag(t, a) // referenced from outside
	t2 := mustNewTag(t, a) // unreferenced, must go
	t3 := mustNewTag(t, a) // referenced locally

	mustAppend(t, a,
		t1, NewPushUint(0),
		t2, NewPushUint(1),
		t3, t3.PushTag(), NewOp(JUMP),
	)

	removed, err := NewJumpdestRemover(a).Optimise(map[LabelID]bool{t1.Ref.Label: true})
	if err != nil {
		t.Fatalf("Optimise: %v", err)
	}
	if !removed {
		t.Fatalf("nothing removed")
	}

	tags := countTags(a.Items())
	if !tags[t1.Ref.Label] {
		t.Fatalf("externally referenced tag removed")
	}
	if tags[t2.Ref.Label] {
		t.Fatalf("unreferenced tag survived")
	}
	if !tags[t3.Ref.Label] {
		t.Fatalf("locally referenced tag removed")
	}
}

func TestJumpdestRemover_Idempotent(t *testing.T) {
	a := NewAssembly("test")
	t1 := mustNewTag(t, a)
	t2 := mustNewTag(t, a)
	mustAppend(t, a, t1, t2, t2.PushTag(), NewOp(JUMP))

	removed, err := NewJumpdestRemover(a).Optimise(nil)
	if err != nil || !removed {
		t.Fatalf("first run: removed=%v, err=%v", removed, err)
	}
	removed, err = NewJumpdestRemover(a).Optimise(nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if removed {
		t.Fatalf("second run still removed tags")
	}
}

func TestJumpdestRemover_RejectsForeignTag(t *testing.T) {
	a := NewAssembly("test")
	a.SetItems([]AssemblyItem{
		&Tag{Ref: LabelRef{Sub: 0, Label: 1}}, // belongs to sub-assembly 0
	})
	_, err := NewJumpdestRemover(a).Optimise(nil)
	if !errors.Is(err, ErrInvalidLabelUsage) {
		t.Fatalf("err = %v, want ErrInvalidLabelUsage", err)
	}
}

func TestJumpdestRemover_ForeignTagLeavesItemsIntact(t *testing.T) {
	a := NewAssembly("test")
	// An unreferenced local tag before the bad item: a filter sharing the
	// backing array would have compacted over it before failing.
	original := []AssemblyItem{
		&Tag{Ref: LabelRef{Sub: SubSelf, Label: 1}},
		NewOp(STOP),
		&Tag{Ref: LabelRef{Sub: 0, Label: 2}},
	}
	a.SetItems(original)

	_, err := NewJumpdestRemover(a).Optimise(nil)
	if !errors.Is(err, ErrInvalidLabelUsage) {
		t.Fatalf("err = %v, want ErrInvalidLabelUsage", err)
	}
	items := a.Items()
	if len(items) != 3 {
		t.Fatalf("items = %v", items)
	}
	if tag, ok := items[0].(*Tag); !ok || tag.Ref.Label != 1 {
		t.Fatalf("item 0 = %v, want local tag 1", items[0])
	}
	if !IsOp(items[1], STOP) {
		t.Fatalf("item 1 = %v, want STOP", items[1])
	}
	if tag, ok := items[2].(*Tag); !ok || !tag.Ref.Foreign() {
		t.Fatalf("item 2 = %v, want foreign tag", items[2])
	}
}

func TestReferencedTags_FiltersBySub(t *testing.T) {
	items := []AssemblyItem{
		&PushTag{Ref: LabelRef{Sub: SubSelf, Label: 1}},
		&PushTag{Ref: LabelRef{Sub: 0, Label: 2}},
		&PushTag{Ref: LabelRef{Sub: 1, Label: 3}},
		NewOp(JUMP),
	}
	local := ReferencedTags(items, SubSelf)
	if !local[1] || local[2] || local[3] {
		t.Fatalf("local references = %v", local)
	}
	sub0 := ReferencedTags(items, 0)
	if !sub0[2] || sub0[1] || sub0[3] {
		t.Fatalf("sub 0 references = %v", sub0)
	}
}
