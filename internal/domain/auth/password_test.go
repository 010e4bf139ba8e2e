package auth

import "testing"

func TestArgon2idVerifier_RoundTrip(t *testing.T) {
	v := Argon2idVerifier{}

	hash, err := v.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() returned error: %v", err)
	}

	match, err := v.Verify("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("Verify() returned error: %v", err)
	}
	if !match {
		t.Error("expected password to match its own hash")
	}

	match, err = v.Verify("wrong password", hash)
	if err != nil {
		t.Fatalf("Verify() returned error: %v", err)
	}
	if match {
		t.Error("expected wrong password to not match")
	}
}

func TestArgon2idVerifier_MalformedHash_ErrorsNotPanics(t *testing.T) {
	v := Argon2idVerifier{}

	tests := []string{
		"",
		"not-a-hash",
		"$argon2id$v=19$m=0,t=0,p=0$AAAA$AAAA", // zero params panic inside the library
	}
	for _, hash := range tests {
		match, err := v.Verify("password", hash)
		if match {
			t.Errorf("Verify(%q): expected no match", hash)
		}
		if err == nil {
			t.Errorf("Verify(%q): expected error for malformed hash", hash)
		}
	}
}
