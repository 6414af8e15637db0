package state

import (
	"testing"

	"github.com/holiman/uint256"

	"chainsim/storage"
)

type record struct {
	Name   string
	Amount *uint256.Int
	Flag   bool
}

func TestManagerKVRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewStore())
	key := Key([]byte("test"), []byte("record"))
	if string(key) != "test/record" {
		t.Fatalf("unexpected key %q", key)
	}
	in := record{Name: "alpha", Amount: uint256.NewInt(42), Flag: true}
	if err := mgr.KVPut(key, in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out record
	ok, err := mgr.KVGet(key, &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out.Name != "alpha" || out.Amount.Uint64() != 42 || !out.Flag {
		t.Fatalf("unexpected record %+v", out)
	}
	if err := mgr.KVDelete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = mgr.KVGet(key, &out)
	if err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
}

func TestManagerRejectsEmptyKey(t *testing.T) {
	mgr := NewManager(storage.NewStore())
	if err := mgr.KVPut(nil, record{}); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := mgr.KVGet(nil, nil); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestManagerSequence(t *testing.T) {
	mgr := NewManager(storage.NewStore())
	key := []byte("seq")
	for want := uint64(0); want < 3; want++ {
		got, err := mgr.NextSequence(key)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != want {
			t.Fatalf("sequence = %d, want %d", got, want)
		}
	}
	current, err := mgr.Sequence(key)
	if err != nil || current != 3 {
		t.Fatalf("sequence = %d err=%v", current, err)
	}
}

func TestManagerIterateDecodes(t *testing.T) {
	mgr := NewManager(storage.NewStore())
	for _, name := range []string{"b", "a", "c"} {
		if err := mgr.KVPut(Key([]byte("items"), []byte(name)), record{Name: name, Amount: uint256.NewInt(1)}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	var names []string
	err := mgr.KVIterate([]byte("items/"), func(_, raw []byte) (bool, error) {
		var rec record
		if err := Decode(raw, &rec); err != nil {
			return true, err
		}
		names = append(names, rec.Name)
		return false, nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Fatalf("unexpected order %v", names)
	}
}
