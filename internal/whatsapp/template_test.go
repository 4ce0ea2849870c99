package whatsapp

import (
	"testing"

	"omnichannel-gateway/internal/models"
)

func TestRenderTemplate(t *testing.T) {
	tmpl := &models.MessageTemplate{
		Name: "booking_confirmation",
		Body: "Hi {{1}}, your trip to {{2}} is confirmed for {{3}}.",
	}

	text, buttons := RenderTemplate(tmpl, []string{"Maria", "Lisbon", "May 12"})
	want := "Hi Maria, your trip to Lisbon is confirmed for May 12."
	if text != want {
		t.Errorf("got %q, want %q", text, want)
	}
	if len(buttons) != 0 {
		t.Errorf("expected no buttons, got %v", buttons)
	}
}

func TestRenderTemplateMissingParamsLeaveSlots(t *testing.T) {
	tmpl := &models.MessageTemplate{Body: "Hi {{1}}, see you on {{2}}."}

	text, _ := RenderTemplate(tmpl, []string{"Ana"})
	want := "Hi Ana, see you on {{2}}."
	if text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestRenderTemplateButtons(t *testing.T) {
	tmpl := &models.MessageTemplate{
		Body:    "Confirm your seat, {{1}}?",
		Buttons: `["Yes","No","Call me"]`,
	}

	text, buttons := RenderTemplate(tmpl, []string{"João"})
	if text != "Confirm your seat, João?" {
		t.Errorf("unexpected text %q", text)
	}
	if len(buttons) != 3 || buttons[2] != "Call me" {
		t.Errorf("unexpected buttons %v", buttons)
	}
}

func TestRenderTemplateMalformedButtons(t *testing.T) {
	tmpl := &models.MessageTemplate{Body: "plain", Buttons: "{broken"}

	_, buttons := RenderTemplate(tmpl, nil)
	if len(buttons) != 0 {
		t.Errorf("malformed button JSON should yield none, got %v", buttons)
	}
}
