package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"respbg/internal/state"
)

const page = `<!DOCTYPE html><html><head></head><body>
<div id="hero" data-background-image-srcset="s.jpg 400w, m.jpg 800w, l.jpg 1600w"></div>
</body></html>`

func run(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv("RESPBG_LOG_LEVEL", "none")
	ctx := state.ContextWithEnv(context.Background())
	return newApp().Run(ctx, append([]string{appName}, args...))
}

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestApplyCommand(t *testing.T) {
	src := writeTemp(t, "page.html", page)
	dst := filepath.Join(t.TempDir(), "out.html")
	if err := run(t, "apply", "--width", "700", src, dst); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out := readFile(t, dst); !strings.Contains(out, "url(&#39;m.jpg&#39;)") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestApplyCommandResize(t *testing.T) {
	src := writeTemp(t, "page.html", page)
	dst := filepath.Join(t.TempDir(), "out.html")
	if err := run(t, "apply", "--width", "300", "--resize", "1200", src, dst); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out := readFile(t, dst); !strings.Contains(out, "url(&#39;l.jpg&#39;)") {
		t.Fatalf("expected the resize pass to pick l.jpg:\n%s", out)
	}
}

func TestApplyCommandMissingSource(t *testing.T) {
	if err := run(t, "apply"); err == nil {
		t.Fatal("expected error without SOURCE")
	}
	if err := run(t, "apply", filepath.Join(t.TempDir(), "absent.html")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseCommand(t *testing.T) {
	if err := run(t, "parse", "--width", "500", "b.jpg 1000w, a.jpg 500w"); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := run(t, "parse", "a.jpg 500w, oops"); err == nil {
		t.Fatal("expected malformed declaration error")
	}
}

func TestDumpConfigCommand(t *testing.T) {
	cfgFile := writeTemp(t, "respbg.toml", "selector = \"hero-srcset\"\n")
	dst := filepath.Join(t.TempDir(), "dump.yaml")
	if err := run(t, "--config", cfgFile, "dumpconfig", dst); err != nil {
		t.Fatalf("dumpconfig: %v", err)
	}
	if out := readFile(t, dst); !strings.Contains(out, "selector: hero-srcset") {
		t.Fatalf("dump missing selector:\n%s", out)
	}

	if err := run(t, "--config", cfgFile, "dumpconfig", "--default", dst); err != nil {
		t.Fatalf("dumpconfig --default: %v", err)
	}
	if out := readFile(t, dst); !strings.Contains(out, "selector: background-image-srcset") {
		t.Fatalf("default dump:\n%s", out)
	}
}

func TestBadConfig(t *testing.T) {
	cfgFile := writeTemp(t, "respbg.yaml", "selector: \"\"\n")
	if err := run(t, "--config", cfgFile, "dumpconfig"); err == nil {
		t.Fatal("expected validation error")
	}
}
