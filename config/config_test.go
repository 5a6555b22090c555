package config

import "testing"

func TestBuildDefaults(t *testing.T) {
	snap, err := Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(snap.Ciphers) == 0 {
		t.Error("expected non-empty default cipher list")
	}
	if len(snap.MACs) == 0 {
		t.Error("expected non-empty default MAC list")
	}
	if snap.StrictHostKeyChecking != StrictYes {
		t.Errorf("default StrictHostKeyChecking = %v, want StrictYes", snap.StrictHostKeyChecking)
	}
}

func TestWithCiphersOverridesDefault(t *testing.T) {
	snap, err := Build(WithCiphers("aes128-ctr"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(snap.Ciphers) != 1 || snap.Ciphers[0] != "aes128-ctr" {
		t.Errorf("Ciphers = %v, want [aes128-ctr]", snap.Ciphers)
	}
}

func TestBuildRejectsEmptyAllowList(t *testing.T) {
	_, err := Build(WithCiphers())
	if err != ErrEmptyAllowList {
		t.Fatalf("err = %v, want ErrEmptyAllowList", err)
	}
}

func TestSnapshotIsIndependentOfCallerSlice(t *testing.T) {
	names := []string{"aes128-ctr", "aes256-ctr"}
	snap, err := Build(WithCiphers(names...))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	names[0] = "tampered"
	if snap.Ciphers[0] != "aes128-ctr" {
		t.Errorf("Snapshot.Ciphers aliases caller slice: got %v", snap.Ciphers)
	}
}
