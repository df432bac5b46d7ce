package translate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_Translate(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k123" {
			t.Errorf("Authorization: got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"original_text":"hello","translated_text":"bonjour","confidence":0.92,"audio_data":"AQID"}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithAPIKey("k123"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := c.Translate(context.Background(), Request{Text: "hello", TargetLanguage: "fr", VoiceID: "v1"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got.SourceLanguage != "en" || got.TargetLanguage != "fr" || got.VoiceID != "v1" {
		t.Errorf("request: %+v", got)
	}
	if resp.TranslatedText != "bonjour" || resp.Confidence != 0.92 {
		t.Errorf("response: %+v", resp)
	}
	if string(resp.AudioData) != "\x01\x02\x03" {
		t.Errorf("audio: %v", resp.AudioData)
	}
}

func TestClient_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Translate(context.Background(), Request{Text: "x", TargetLanguage: "de"})
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("got %v, want ErrStatus", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error lacks status: %v", err)
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(url)
	if _, err := c.Translate(context.Background(), Request{Text: "x"}); err == nil {
		t.Fatal("expected error against closed server")
	}
}

func TestNew_EmptyEndpoint(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Error("expected error")
	}
}

func TestAudioData_Forms(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`{"audio_data":[104,105]}`, "hi", false},
		{`{"audio_data":"aGk="}`, "hi", false},
		{`{"audio_data":null}`, "", false},
		{`{"audio_data":""}`, "", false},
		{`{"audio_data":[300]}`, "", true},
		{`{"audio_data":"%%%"}`, "", true},
		{`{"audio_data":12}`, "", true},
	}
	for _, tt := range tests {
		var r Response
		err := json.Unmarshal([]byte(tt.in), &r)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && string(r.AudioData) != tt.want {
			t.Errorf("%s: got %q, want %q", tt.in, r.AudioData, tt.want)
		}
	}
}

func TestFallback(t *testing.T) {
	r := Fallback("good morning")
	if r.TranslatedText != "[Translation Error: good morning]" || r.Confidence != 0 || r.AudioData != nil {
		t.Errorf("Fallback: %+v", r)
	}
}
