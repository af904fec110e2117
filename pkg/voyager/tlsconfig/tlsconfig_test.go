package tlsconfig

import "testing"

func TestBuildSetsServerNameAndALPN(t *testing.T) {
	cfg, err := Build(Config{}, "example.com")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.ServerName != "example.com" {
		t.Fatalf("ServerName = %q, want example.com", cfg.ServerName)
	}
	if len(cfg.NextProtos) != 2 || cfg.NextProtos[0] != "h2" || cfg.NextProtos[1] != "http/1.1" {
		t.Fatalf("NextProtos = %v, want [h2 http/1.1]", cfg.NextProtos)
	}
}

func TestBuildVerifyDisabled(t *testing.T) {
	cfg, err := Build(Config{VerifyDisabled: true}, "example.com")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !cfg.InsecureSkipVerify {
		t.Fatal("expected InsecureSkipVerify when VerifyDisabled is set")
	}
}

func TestBuildFromBaseConfigClones(t *testing.T) {
	base, err := Build(Config{}, "base.example.com")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	derived, err := Build(Config{BaseConfig: base}, "derived.example.com")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if derived == base {
		t.Fatal("expected Build to clone BaseConfig, not reuse it")
	}
	if base.ServerName != "base.example.com" {
		t.Fatal("Build mutated the caller's BaseConfig")
	}
	if derived.ServerName != "derived.example.com" {
		t.Fatalf("ServerName = %q, want derived.example.com", derived.ServerName)
	}
}

func TestFromEnvironmentEnablesTrustEnv(t *testing.T) {
	cfg := FromEnvironment()
	if !cfg.TrustEnv {
		t.Fatal("expected TrustEnv to be true")
	}
}
