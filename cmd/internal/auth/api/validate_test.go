package authapi

import "testing"

func TestValidateEmail(t *testing.T) {
	good := []string{"a@x.com", "operator@predixa.local", "first.last+line2@plant.example.org"}
	for _, e := range good {
		if msg := validateEmail(e); msg != "" {
			t.Fatalf("%q: unexpected rejection %q", e, msg)
		}
	}

	bad := []string{"", "plain", "@x.com", "a@", "a@localhost", "Alice <a@x.com>"}
	for _, e := range bad {
		if validateEmail(e) == "" {
			t.Fatalf("%q: expected rejection", e)
		}
	}
}

func TestValidateRegister_CollectsAllFields(t *testing.T) {
	details := validateRegister(registerRequest{Email: "bad", Password: "x", Name: ""})
	for _, k := range []string{"email", "password", "name"} {
		if details[k] == "" {
			t.Fatalf("expected %s error, got %v", k, details)
		}
	}
	if len(validateRegister(registerRequest{Email: "a@x.com", Password: "secret123", Name: "Al"})) != 0 {
		t.Fatalf("expected valid registration")
	}
}
