package scrape

import (
	"reflect"
	"testing"
)

func TestExtractEmails_TextNodes(t *testing.T) {
	body := []byte(`<html><body>
		<p>Reach us at sales@acme.com or support@acme.com.</p>
		<footer>press@acme.co.uk</footer>
	</body></html>`)

	got := ExtractEmails(body)
	want := []string{"press@acme.co.uk", "sales@acme.com", "support@acme.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractEmails() = %v, want %v", got, want)
	}
}

func TestExtractEmails_MailtoLinks(t *testing.T) {
	body := []byte(`<html><body>
		<a href="mailto:hello@acme.com">Email us</a>
		<a href="mailto:jobs@acme.com?subject=Hiring">Careers</a>
		<a href="/contact">Contact page</a>
	</body></html>`)

	got := ExtractEmails(body)
	want := []string{"hello@acme.com", "jobs@acme.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractEmails() = %v, want %v", got, want)
	}
}

func TestExtractEmails_Deduplicates(t *testing.T) {
	body := []byte(`<html><body>
		<p>Info@Acme.com</p>
		<a href="mailto:info@acme.com">info@acme.com</a>
	</body></html>`)

	got := ExtractEmails(body)
	if len(got) != 1 || got[0] != "info@acme.com" {
		t.Errorf("ExtractEmails() = %v, want [info@acme.com]", got)
	}
}

func TestExtractEmails_FiltersFalsePositives(t *testing.T) {
	body := []byte(`<html><body>
		<img src="logo@2x.png">
		<p>icon@3x.jpg sprite@2x.svg</p>
		<p>root@127.0.0.1 admin@localhost.localdomain</p>
		<p>user@example.com test@test.com</p>
		<p>real.person@acme.io</p>
	</body></html>`)

	got := ExtractEmails(body)
	want := []string{"real.person@acme.io"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractEmails() = %v, want %v", got, want)
	}
}

func TestExtractEmails_ScriptBlocks(t *testing.T) {
	body := []byte(`<html><head>
		<script type="application/ld+json">
			{"@type": "Organization", "email": "office@acme.com"}
		</script>
	</head><body></body></html>`)

	got := ExtractEmails(body)
	want := []string{"office@acme.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractEmails() = %v, want %v", got, want)
	}
}

func TestExtractEmails_EmptyAndPlainText(t *testing.T) {
	if got := ExtractEmails(nil); len(got) != 0 {
		t.Errorf("ExtractEmails(nil) = %v, want empty", got)
	}

	got := ExtractEmails([]byte("not html at all, but ceo@acme.com is here"))
	want := []string{"ceo@acme.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractEmails() = %v, want %v", got, want)
	}
}

func TestPlausibleEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"person@acme.com", true},
		{"first.last+tag@acme.io", true},
		{"logo@2x.png", false},
		{"style@main.css", false},
		{"root@10.0.0.1", false},
		{"dev@localhost", false},
		{"user@example.com", false},
		{"test@test.com", false},
	}

	for _, tt := range tests {
		if got := plausibleEmail(tt.email); got != tt.want {
			t.Errorf("plausibleEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}
