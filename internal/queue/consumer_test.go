package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestHandleAppendsMailLog(t *testing.T) {
	dir := t.TempDir()
	c := &MailConsumer{Dir: dir}
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	body, _ := json.Marshal(MailEvent{
		Kind: MailInvite, To: "new@b.com", Name: "Ada Lovelace", Subject: "You're invited",
		Link: "http://localhost:8080/register/abc", ExpiresAt: at.Add(7 * 24 * time.Hour), CreatedAt: at,
	})

	for i := 0; i < 2; i++ {
		if err := c.Handle(body); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	raw, err := os.ReadFile(filepath.Join(dir, "mail.log"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "[2026-03-01T09:00:00Z] invite | to=new@b.com") ||
		!strings.Contains(lines[0], "link=http://localhost:8080/register/abc") {
		t.Fatalf("unexpected line %q", lines[0])
	}
}

func TestHandleRejectsBadMessages(t *testing.T) {
	c := &MailConsumer{Dir: t.TempDir()}
	if err := c.Handle([]byte("{")); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if err := c.Handle([]byte(`{"kind":"invite"}`)); err == nil {
		t.Fatal("expected missing recipient error")
	}
}
