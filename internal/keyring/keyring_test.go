package keyring

import "testing"

func TestNoneReturnsNilKey(t *testing.T) {
	var p Provider = None{}
	key, err := p.GetKey("app", "main", "main")
	if err != nil {
		t.Fatal(err)
	}
	if key != nil {
		t.Fatalf("expected nil key, got %v", key)
	}
}
