package dynamic

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

func TestElementJSPath(t *testing.T) {
	e := &Element{selector: `img[alt="x"]`, index: 2}
	want := `document.querySelectorAll("img[alt=\"x\"]")[2]`
	if got := e.jsPath(); got != want {
		t.Errorf("jsPath = %s, want %s", got, want)
	}
}

func TestElementText(t *testing.T) {
	e := &Element{text: "  Dune:\n  Part   Two ", attrs: map[string]string{"src": "https://x/p.jpg"}}
	if got := e.Text(); got != "Dune: Part Two" {
		t.Errorf("Text = %q", got)
	}
	if v, ok := e.Attr("src"); !ok || v != "https://x/p.jpg" {
		t.Errorf("Attr(src) = %q, %v", v, ok)
	}
	if _, ok := e.Attr("href"); ok {
		t.Error("unexpected href")
	}

	s := &Element{text: "var a = 1;\n  var b = 2;", script: true}
	if got := s.Text(); got != "var a = 1;\n  var b = 2;" {
		t.Errorf("script Text = %q", got)
	}
}

func TestFindChromeConfiguredMissing(t *testing.T) {
	t.Setenv("CHROME_PATH", "")
	got := FindChrome("/definitely/not/here/chrome")
	if got == "/definitely/not/here/chrome" {
		t.Error("non-executable configured path returned")
	}
}

func TestDocumentStatusMainFrameOnly(t *testing.T) {
	const main = cdp.FrameID("8E2A")
	doc := func(frame cdp.FrameID, typ network.ResourceType, status int64) *network.EventResponseReceived {
		return &network.EventResponseReceived{FrameID: frame, Type: typ, Response: &network.Response{Status: status}}
	}
	tests := []struct {
		name   string
		ev     interface{}
		frame  cdp.FrameID
		status int64
		ok     bool
	}{
		{"main frame document", doc(main, network.ResourceTypeDocument, 404), main, 404, true},
		{"iframe document", doc("C41F", network.ResourceTypeDocument, 200), main, 0, false},
		{"main frame script", doc(main, network.ResourceTypeScript, 500), main, 0, false},
		{"missing response", &network.EventResponseReceived{FrameID: main, Type: network.ResourceTypeDocument}, main, 0, false},
		{"unknown main frame", doc("C41F", network.ResourceTypeDocument, 403), "", 403, true},
		{"other event", &network.EventLoadingFinished{}, main, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := documentStatus(tt.ev, tt.frame)
			if status != tt.status || ok != tt.ok {
				t.Errorf("documentStatus = %d, %v; want %d, %v", status, ok, tt.status, tt.ok)
			}
		})
	}
}

func TestSessionIgnoresIframeStatus(t *testing.T) {
	s := &Session{mainFrame: "8E2A"}
	s.onEvent(&network.EventResponseReceived{FrameID: "C41F", Type: network.ResourceTypeDocument, Response: &network.Response{Status: 200}})
	s.onEvent(&network.EventResponseReceived{FrameID: "8E2A", Type: network.ResourceTypeDocument, Response: &network.Response{Status: 429}})
	if got := s.status.Load(); got != 429 {
		t.Errorf("status = %d, want 429", got)
	}
}
