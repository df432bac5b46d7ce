package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
browser:
  user_data_dir: /var/lib/capwatch/profile
  resource_blocking: [images, fonts]
translate:
  endpoint: https://translate.example/api/translate
  target_language: fr
pipeline:
  buffer_delay: 1500ms
meetings:
  - id: standup
    url: https://meet.google.com/abc-defg-hij
    auto_start: true
  - id: allhands
    url: https://meet.google.com/xyz-xyzx-xyz
    target_language: de
    selectors: ["div[jsname='tgaKEf'] span"]
sinks:
  - type: overlay
  - type: player
    command: ffplay -nodisp -autoexit -
    audio: true
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Browser.Mode != "headless" || cfg.Browser.RecycleInterval != 4*time.Hour {
		t.Errorf("browser defaults: %+v", cfg.Browser)
	}
	if cfg.Pipeline.BufferDelay != 1500*time.Millisecond || cfg.Pipeline.MinInterval != 2*time.Second ||
		cfg.Pipeline.PollInterval != 750*time.Millisecond || cfg.Pipeline.MinTextLength != 2 {
		t.Errorf("pipeline: %+v", cfg.Pipeline)
	}
	if cfg.Translate.SourceLanguage != "en" {
		t.Errorf("source language = %q", cfg.Translate.SourceLanguage)
	}

	standup, ok := cfg.Meeting("standup")
	if !ok || standup.TargetLanguage != "fr" || !standup.AutoStart {
		t.Errorf("standup: %+v", standup)
	}
	allhands, _ := cfg.Meeting("allhands")
	if allhands.TargetLanguage != "de" || len(allhands.Selectors) != 1 {
		t.Errorf("allhands: %+v", allhands)
	}
	if _, ok := cfg.Meeting("nope"); ok {
		t.Error("unknown meeting found")
	}
}

func TestParse_DefaultSink(t *testing.T) {
	cfg, err := Parse([]byte("translate:\n  endpoint: http://x\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "stdout" {
		t.Errorf("sinks: %+v", cfg.Sinks)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	bad := `
meetings:
  - id: a
    url: https://x
  - id: a
  - url: https://y
sinks:
  - type: webhook
  - type: carrier-pigeon
`
	_, err := Parse([]byte(bad))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"duplicate id", "url is required", "id is required", "webhook needs url", "unknown type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capwatch.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Meetings) != 2 {
		t.Errorf("meetings = %d", len(cfg.Meetings))
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestMeetingsTable(t *testing.T) {
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	if err := SaveMeeting(ctx, db, MeetingConfig{ID: "standup", URL: "https://meet/a", AutoStart: true}); err != nil {
		t.Fatalf("SaveMeeting: %v", err)
	}
	if err := SaveMeeting(ctx, db, MeetingConfig{ID: "retro", URL: "https://meet/b", TargetLanguage: "es",
		Selectors: []string{".caption"}}); err != nil {
		t.Fatalf("SaveMeeting: %v", err)
	}
	// Upsert.
	if err := SaveMeeting(ctx, db, MeetingConfig{ID: "standup", URL: "https://meet/a2"}); err != nil {
		t.Fatalf("SaveMeeting upsert: %v", err)
	}
	if err := SaveMeeting(ctx, db, MeetingConfig{ID: "x"}); err == nil {
		t.Error("missing url: expected error")
	}

	ok, err := SetMeetingStatus(ctx, db, "retro", StatusDisabled)
	if err != nil || !ok {
		t.Fatalf("SetMeetingStatus: %v, %v", ok, err)
	}
	if ok, _ := SetMeetingStatus(ctx, db, "ghost", StatusDisabled); ok {
		t.Error("SetMeetingStatus on missing row reported true")
	}

	all, err := ListMeetings(ctx, db)
	if err != nil {
		t.Fatalf("ListMeetings: %v", err)
	}
	if len(all) != 2 || all[0].ID != "retro" || all[0].Selectors[0] != ".caption" {
		t.Errorf("list: %+v", all)
	}

	active, err := LoadMeetings(ctx, db)
	if err != nil {
		t.Fatalf("LoadMeetings: %v", err)
	}
	if len(active) != 1 || active[0].URL != "https://meet/a2" || active[0].AutoStart {
		t.Errorf("active: %+v", active)
	}
}
