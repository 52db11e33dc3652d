package evmasm

import (
	"errors"
	"strings"
	"testing"
)

func mustAppend(t *testing.T, a *Assembly, items ...AssemblyItem) {
	t.Helper()
	for _, item := range items {
		if err := a.Append(item); err != nil {
			t.Fatalf("append %v: %v", item, err)
		}
	}
}

func mustNewTag(t *testing.T, a *Assembly) *Tag {
	t.Helper()
	tag, err := a.NewTag()
	if err != nil {
		t.Fatalf("NewTag: %v", err)
	}
	return tag
}

func TestAssembly_DepositTracking(t *testing.T) {
	a := NewAssembly("test")
	mustAppend(t, a, NewPushUint(1), NewPushUint(2))
	if a.Deposit() != 2 {
		t.Fatalf("deposit = %d, want 2", a.Deposit())
	}
	mustAppend(t, a, NewOp(ADD))
	if a.Deposit() != 1 {
		t.Fatalf("deposit = %d, want 1", a.Deposit())
	}
	mustAppend(t, a, NewOp(POP))
	if a.Deposit() != 0 {
		t.Fatalf("deposit = %d, want 0", a.Deposit())
	}
}

func TestAssembly_NegativeDepositRejectedWithoutMutation(t *testing.T) {
	a := NewAssembly("test")
	mustAppend(t, a, NewPushUint(7))
	before := len(a.Items())

	err := a.Append(NewOp(MSTORE)) // needs two operands, only one present
	if !errors.Is(err, ErrNegativeDeposit) {
		t.Fatalf("err = %v, want ErrNegativeDeposit", err)
	}
	if len(a.Items()) != before {
		t.Fatalf("failed append mutated the sequence")
	}
	if a.Deposit() != 1 {
		t.Fatalf("failed append changed deposit to %d", a.Deposit())
	}
}

func TestAssembly_TagIDsStartAtOneAndAreUnique(t *testing.T) {
	a := NewAssembly("test")
	t1 := mustNewTag(t, a)
	t2 := mustNewTag(t, a)
	if t1.Ref.Label != 1 || t2.Ref.Label != 2 {
		t.Fatalf("tag ids = %d, %d, want 1, 2", t1.Ref.Label, t2.Ref.Label)
	}
	if t1.Ref.Sub != SubSelf || t1.Ref.Foreign() {
		t.Fatalf("fresh tag is not local: %v", t1.Ref)
	}
}

func TestAssembly_NamedTagRegisteredOnce(t *testing.T) {
	a := NewAssembly("test")
	t1, err := a.NamedTag("invalidJumpLabel")
	if err != nil {
		t.Fatalf("NamedTag: %v", err)
	}
	t2, err := a.NamedTag("invalidJumpLabel")
	if err != nil {
		t.Fatalf("NamedTag: %v", err)
	}
	if t1.Ref != t2.Ref {
		t.Fatalf("same name gave different labels: %v vs %v", t1.Ref, t2.Ref)
	}
	other, err := a.NamedTag("another")
	if err != nil {
		t.Fatalf("NamedTag: %v", err)
	}
	if other.Ref == t1.Ref {
		t.Fatalf("distinct names share a label")
	}
	if _, err := a.NamedTag(""); err == nil {
		t.Fatalf("empty name accepted")
	}
}

func TestAssembly_DataInterningIsIdempotent(t *testing.T) {
	a := NewAssembly("test")
	d1 := a.NewData([]byte("metadata"))
	d2 := a.NewData([]byte("metadata"))
	if d1.Hash != d2.Hash {
		t.Fatalf("equal content interned under different keys")
	}
	d3 := a.NewData([]byte("other"))
	if d3.Hash == d1.Hash {
		t.Fatalf("distinct content interned under one key")
	}
	content, ok := a.Data(d1.Hash)
	if !ok || string(content) != "metadata" {
		t.Fatalf("Data(%x) = %q, %v", d1.Hash[:4], content, ok)
	}
}

func TestAssembly_SubPathEncoding(t *testing.T) {
	a := NewAssembly("root")
	a.NewSub(NewAssembly("child0"))
	a.NewSub(NewAssembly("child1"))
	a.Sub(1).NewSub(NewAssembly("grandchild"))

	// Direct children map to their own index.
	for i := 0; i < 2; i++ {
		id, err := a.EncodeSubPath([]int{i})
		if err != nil || id != i {
			t.Fatalf("EncodeSubPath([%d]) = %d, %v", i, id, err)
		}
	}

	deep, err := a.EncodeSubPath([]int{1, 0})
	if err != nil {
		t.Fatalf("EncodeSubPath deep: %v", err)
	}
	if deep < 1<<30 {
		t.Fatalf("deep id %d collides with child index space", deep)
	}
	again, err := a.EncodeSubPath([]int{1, 0})
	if err != nil || again != deep {
		t.Fatalf("re-encoding gave %d, %v, want %d", again, err, deep)
	}

	path, err := a.DecodeSubPath(deep)
	if err != nil || len(path) != 2 || path[0] != 1 || path[1] != 0 {
		t.Fatalf("DecodeSubPath(%d) = %v, %v", deep, path, err)
	}

	sub, err := a.SubAssemblyByID(deep)
	if err != nil || sub.Name() != "grandchild" {
		t.Fatalf("SubAssemblyByID(%d) = %v, %v", deep, sub, err)
	}

	if _, err := a.EncodeSubPath([]int{5}); !errors.Is(err, ErrUnknownSubProgram) {
		t.Fatalf("out-of-range child: %v", err)
	}
	if _, err := a.DecodeSubPath(12345); !errors.Is(err, ErrUnknownSubProgram) {
		t.Fatalf("unregistered id: %v", err)
	}
}

func TestAssembly_MarkInvalidPoisonsAssemble(t *testing.T) {
	a := NewAssembly("test")
	mustAppend(t, a, NewPushUint(1))
	a.MarkInvalid()
	a.MarkInvalid() // idempotent
	if _, err := a.Assemble(); !errors.Is(err, ErrAssemblyInvalidated) {
		t.Fatalf("Assemble after MarkInvalid: %v", err)
	}
}

func TestAssembly_AssembleCacheDroppedOnMutation(t *testing.T) {
	a := NewAssembly("test")
	mustAppend(t, a, NewPushUint(1))
	obj1, err := a.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	obj2, err := a.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if obj1 != obj2 {
		t.Fatalf("unchanged assembly re-serialized")
	}
	mustAppend(t, a, NewOp(POP))
	obj3, err := a.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if obj3 == obj1 {
		t.Fatalf("mutation kept the stale serialization")
	}
}

func TestAssembly_RewriteCallback(t *testing.T) {
	a := NewAssembly("test")
	a.Callback = func(item AssemblyItem) (bool, error) {
		if IsOp(item, ORIGIN) {
			return true, a.Append(NewOp(CALLER))
		}
		return false, nil
	}
	mustAppend(t, a, NewOp(ORIGIN))
	items := a.Items()
	if len(items) != 1 || !IsOp(items[0], CALLER) {
		t.Fatalf("callback did not replace the item: %v", items)
	}
}

func TestAssembly_StringListing(t *testing.T) {
	a := NewAssembly("test")
	tag := mustNewTag(t, a)
	mustAppend(t, a, tag, NewPushUint(0x80), NewOp(MLOAD), NewOp(POP))
	a.NewData([]byte{0xde, 0xad})
	sub := NewAssembly("runtime")
	a.NewSub(sub)

	listing := a.String()
	for _, want := range []string{"tag1:", "MLOAD", "data_", "sub_0: assembly \"runtime\""} {
		if !strings.Contains(listing, want) {
			t.Fatalf("listing missing %q:\n%s", want, listing)
		}
	}
}
