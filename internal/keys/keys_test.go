package keys

import (
	"path/filepath"
	"testing"
)

func TestGenerateSignAndOpenRoundTrip(t *testing.T) {
	kp, err := Generate("raster-test")
	if err != nil {
		t.Fatal(err)
	}

	signer, err := kp.Signer()
	if err != nil {
		t.Fatal(err)
	}
	verifier, err := kp.Verifier()
	if err != nil {
		t.Fatal(err)
	}

	signed, err := SignCheckpoint(signer, "raster-test\n1\nroot-abc\ncfs-digest-xyz\n")
	if err != nil {
		t.Fatal(err)
	}

	text, err := OpenCheckpoint(signed, verifier)
	if err != nil {
		t.Fatal(err)
	}
	if text != "raster-test\n1\nroot-abc\ncfs-digest-xyz\n" {
		t.Fatalf("unexpected checkpoint text: %q", text)
	}
}

func TestOpenCheckpointRejectsUnrelatedKey(t *testing.T) {
	kp, err := Generate("raster-test")
	if err != nil {
		t.Fatal(err)
	}
	other, err := Generate("raster-test")
	if err != nil {
		t.Fatal(err)
	}

	signer, err := kp.Signer()
	if err != nil {
		t.Fatal(err)
	}
	wrongVerifier, err := other.Verifier()
	if err != nil {
		t.Fatal(err)
	}

	signed, err := SignCheckpoint(signer, "raster-test\n1\nroot-abc\ndigest\n")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := OpenCheckpoint(signed, wrongVerifier); err == nil {
		t.Fatal("expected verification under an unrelated key to fail")
	}
}

func TestSaveAndLoadPrivate(t *testing.T) {
	kp, err := Generate("raster-test")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "build.key")
	if err := kp.Save(path); err != nil {
		t.Fatal(err)
	}

	signer, err := LoadPrivate(path)
	if err != nil {
		t.Fatal(err)
	}
	if signer.Name() != "raster-test" {
		t.Fatalf("expected loaded signer name raster-test, got %q", signer.Name())
	}
}
