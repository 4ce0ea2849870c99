package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"

	"omnichannel-gateway/internal/models"
)

// RenderTemplate substitutes ordered parameters into the template's {{n}}
// variable slots and decodes its quick-reply buttons, if any.
func RenderTemplate(tmpl *models.MessageTemplate, params []string) (string, []string) {
	text := tmpl.Body
	for i, p := range params {
		slot := fmt.Sprintf("{{%d}}", i+1)
		text = strings.ReplaceAll(text, slot, p)
	}

	var buttons []string
	if tmpl.Buttons != "" {
		_ = json.Unmarshal([]byte(tmpl.Buttons), &buttons)
	}
	return text, buttons
}
