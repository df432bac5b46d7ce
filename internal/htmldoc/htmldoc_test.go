package htmldoc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/capwatch/internal/locator"
)

const meetFrame1 = `<!DOCTYPE html><html><body>
<div role="region" aria-label="Captions">
  <div class="nMcdL"><div class="KcIKyf">Alice</div><div jsname="tgaKEf">Hello</div></div>
</div>
<script>var captions = "not this";</script>
</body></html>`

const meetFrame2 = `<!DOCTYPE html><html><body>
<div role="region" aria-label="Captions">
  <div class="nMcdL"><div class="KcIKyf">Alice</div><div jsname="tgaKEf">Hello there</div></div>
</div>
</body></html>`

const meetFrame3 = `<!DOCTYPE html><html><body>
<div role="region" aria-label="Captions">
  <div class="nMcdL"><div class="KcIKyf">Alice</div><div jsname="tgaKEf">Hello there</div></div>
  <div class="nMcdL"><div class="KcIKyf">Bob</div><div jsname="tgaKEf">Good morning</div></div>
</div>
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	d, err := ParseString(s)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return d
}

func TestQueryAll_DocumentOrder(t *testing.T) {
	d := mustParse(t, meetFrame3)
	elems, err := d.QueryAll(context.Background(), `div[jsname="tgaKEf"]`)
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(elems) != 2 {
		t.Fatalf("QueryAll: got %d elements, want 2", len(elems))
	}
	text, _ := elems[1].Text(context.Background())
	if text != "Good morning" {
		t.Errorf("last element text: got %q", text)
	}
	if elems[0].Identity() == elems[1].Identity() {
		t.Error("distinct nodes share an identity")
	}
}

func TestQueryAll_BadSelector(t *testing.T) {
	d := mustParse(t, meetFrame1)
	if _, err := d.QueryAll(context.Background(), "div[["); err == nil {
		t.Error("expected compile error")
	}
}

func TestIdentity_StableAcrossFrames(t *testing.T) {
	l := locator.New()
	ctx := context.Background()

	o1 := l.Locate(ctx, mustParse(t, meetFrame1))
	o2 := l.Locate(ctx, mustParse(t, meetFrame2))
	o3 := l.Locate(ctx, mustParse(t, meetFrame3))
	if o1 == nil || o2 == nil || o3 == nil {
		t.Fatalf("Locate returned nil: %v %v %v", o1, o2, o3)
	}
	if o1.Identity != o2.Identity {
		t.Errorf("same node, different identity: %q vs %q", o1.Identity, o2.Identity)
	}
	if o3.Identity == o2.Identity {
		t.Errorf("new speaker block kept identity %q", o3.Identity)
	}
	if o2.Text != "Hello there" || o3.Text != "Good morning" {
		t.Errorf("texts: %q / %q", o2.Text, o3.Text)
	}
}

func TestText_SkipsScripts(t *testing.T) {
	d := mustParse(t, `<html><body><p id="x">spoken <script>code()</script>words</p></body></html>`)
	elems, err := d.QueryAll(context.Background(), "#x")
	if err != nil || len(elems) != 1 {
		t.Fatalf("QueryAll: %v (%d)", err, len(elems))
	}
	text, _ := elems[0].Text(context.Background())
	if locator.CleanText(text) != "spoken words" {
		t.Errorf("Text: got %q", text)
	}
}

func TestText_NoSeparatorAroundElement(t *testing.T) {
	d := mustParse(t, `<html><body><div id="cap"><div>Alice</div><div>Hello there</div></div></body></html>`)
	elems, err := d.QueryAll(context.Background(), "#cap")
	if err != nil || len(elems) != 1 {
		t.Fatalf("QueryAll: %v (%d)", err, len(elems))
	}
	text, _ := elems[0].Text(context.Background())
	if text != "Alice Hello there" {
		t.Errorf("Text: got %q, want %q", text, "Alice Hello there")
	}
}

func TestIdentity_PrefersIDAttribute(t *testing.T) {
	const before = `<html><body><div id="c">
<div class="blk" id="u1">Hello there</div>
<div class="blk" id="u2">Good morning</div>
</div></body></html>`
	// The older block is dropped and the survivor moves up one position.
	const after = `<html><body><div id="c">
<div class="blk" id="u2">Good morning everyone</div>
</div></body></html>`

	ctx := context.Background()
	b, _ := mustParse(t, before).QueryAll(ctx, ".blk")
	a, _ := mustParse(t, after).QueryAll(ctx, ".blk")
	if len(b) != 2 || len(a) != 1 {
		t.Fatalf("QueryAll: got %d and %d elements", len(b), len(a))
	}
	if b[1].Identity() != a[0].Identity() {
		t.Errorf("shifted block changed identity: %q vs %q", b[1].Identity(), a[0].Identity())
	}
	if got := string(a[0].Identity()); got != "id:u2" {
		t.Errorf("Identity: got %q", got)
	}
}

func TestXPath(t *testing.T) {
	d := mustParse(t, `<html><body><div><span>a</span><span>b</span></div><p>c</p></body></html>`)
	elems, _ := d.QueryAll(context.Background(), "span")
	if got := string(elems[1].Identity()); got != "/html/body/div/span[2]" {
		t.Errorf("XPath: got %q", got)
	}
	ps, _ := d.QueryAll(context.Background(), "p")
	if got := string(ps[0].Identity()); got != "/html/body/p" {
		t.Errorf("XPath: got %q", got)
	}
}

func TestReplay_LoadDir(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"002.html":  meetFrame2,
		"001.html":  meetFrame1,
		"notes.txt": "ignored",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", r.Len())
	}
	if _, name := r.Current(); name != "001.html" {
		t.Errorf("first frame: got %q", name)
	}

	l := locator.New()
	if o := l.Locate(context.Background(), r); o == nil || o.Text != "Hello" {
		t.Fatalf("frame 1: got %+v", o)
	}
	if !r.Next() {
		t.Fatal("Next: want true")
	}
	if o := l.Locate(context.Background(), r); o == nil || o.Text != "Hello there" {
		t.Fatalf("frame 2: got %+v", o)
	}
	if r.Next() {
		t.Error("Next past last frame: want false")
	}
}

func TestReplay_EmptyDir(t *testing.T) {
	if _, err := LoadDir(t.TempDir()); err == nil {
		t.Error("expected error for empty dir")
	}
}
