package password

import (
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	digest, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", digest)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", digest)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed: ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify("wrong-password", digest)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestArgon2SaltsDiffer(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	a, _ := hasher.Hash("same-password")
	b, _ := hasher.Hash("same-password")
	if a == b {
		t.Fatal("expected distinct digests for the same password")
	}
}

func TestArgon2VerifiesPaddedDigest(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	digest, err := hasher.Hash("padded-digest")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	parts := strings.Split(digest, "$")
	// 16-byte salt and 32-byte key need "==" and "=" padding in StdEncoding.
	parts[4] += "=="
	parts[5] += "="
	ok, err := hasher.Verify("padded-digest", strings.Join(parts, "$"))
	if err != nil || !ok {
		t.Fatalf("expected padded digest to verify: ok=%v err=%v", ok, err)
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	oldHasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2(old) error: %v", err)
	}
	digest, err := oldHasher.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	newHasher, err := NewArgon2(stronger)
	if err != nil {
		t.Fatalf("NewArgon2(new) error: %v", err)
	}

	upgrade, err := newHasher.NeedsUpgrade(digest)
	if err != nil || !upgrade {
		t.Fatalf("expected upgrade for weaker digest: upgrade=%v err=%v", upgrade, err)
	}

	upgrade, err = oldHasher.NeedsUpgrade(digest)
	if err != nil || upgrade {
		t.Fatalf("expected no upgrade for current parameters: upgrade=%v err=%v", upgrade, err)
	}
}

func TestArgon2RejectsMalformedDigests(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	digest, err := hasher.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	cases := []string{
		"not-a-phc-hash",
		strings.Replace(digest, "$v=19$", "$v=18$", 1),
		strings.Replace(digest, "m=8192", "m=1", 1),
		strings.Replace(digest, ",p=1", ",x=1", 1),
	}
	for _, c := range cases {
		if _, err := hasher.Verify("version-test", c); err == nil {
			t.Fatalf("expected malformed digest %q to fail", c)
		}
	}
}

func TestArgon2PasswordBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxPasswordBytes = 64
	hasher, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	if _, err := hasher.Hash(""); err != ErrEmptyPassword {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if _, err := hasher.Hash(strings.Repeat("a", 65)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	exact := strings.Repeat("b", 64)
	digest, err := hasher.Hash(exact)
	if err != nil {
		t.Fatalf("expected exactly-max password to be accepted: %v", err)
	}
	if _, err := hasher.Verify(strings.Repeat("c", 65), digest); err != ErrPasswordTooLong {
		t.Fatalf("expected Verify to reject long password, got %v", err)
	}
}

func TestArgon2ConfigValidation(t *testing.T) {
	bad := []Config{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range bad {
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}
