package whatsapp

import (
	"strings"
	"time"
)

// ResponseCategory classifies an inbound message for the canned-response
// generator.
type ResponseCategory string

const (
	CategoryGreeting  ResponseCategory = "greeting"
	CategoryFlight    ResponseCategory = "flight"
	CategoryPricing   ResponseCategory = "pricing"
	CategoryHotel     ResponseCategory = "hotel"
	CategoryCarRental ResponseCategory = "car_rental"
	CategoryUrgent    ResponseCategory = "urgent"
	CategoryFallback  ResponseCategory = "fallback"
)

// Responder generates rule-based canned replies. It exists so customers get
// an answer even when the automation webhook is unreachable: degraded, never
// silent.
type Responder struct {
	startHour int
	endHour   int
	now       func() time.Time
}

func NewResponder(startHour, endHour int) *Responder {
	return &Responder{startHour: startHour, endHour: endHour, now: time.Now}
}

var categoryKeywords = []struct {
	category ResponseCategory
	keywords []string
}{
	// Urgent is checked first so "urgent flight" never downgrades to the
	// flight reply.
	{CategoryUrgent, []string{"urgent", "emergency", "socorro", "urgente", "emergência", "help me"}},
	{CategoryGreeting, []string{"oi", "olá", "ola", "hello", "hi", "hey", "bom dia", "boa tarde", "boa noite"}},
	{CategoryFlight, []string{"flight", "voo", "passagem", "ticket", "fly"}},
	{CategoryPricing, []string{"price", "preço", "preco", "cost", "quanto custa", "cotação", "cotacao", "quote"}},
	{CategoryHotel, []string{"hotel", "hospedagem", "accommodation", "stay", "resort"}},
	{CategoryCarRental, []string{"car", "carro", "rental", "aluguel", "alugar"}},
}

var categoryReplies = map[ResponseCategory]string{
	CategoryGreeting:  "Hello! Thanks for reaching out to us. How can we help you with your trip today?",
	CategoryFlight:    "We can help you with flights! Please share your departure city, destination and travel dates and an agent will pick this up.",
	CategoryPricing:   "We'll get you a quote shortly. Could you confirm the destination and dates you have in mind?",
	CategoryHotel:     "Looking for a place to stay? Tell us the city and check-in/check-out dates and we'll send some options.",
	CategoryCarRental: "We work with several car rental partners. Which city and dates do you need the car for?",
	CategoryUrgent:    "We understand this is urgent. Your message has been flagged and a member of our team is being notified right now.",
	CategoryFallback:  "Thanks for your message! One of our travel agents will get back to you shortly.",
}

const afterHoursSuffix = "\n\nPlease note we are currently outside business hours; replies may take a little longer than usual."

// Respond classifies the message and returns the canned reply. Outside the
// business-hours window every reply gets the after-hours suffix, except the
// urgent category which is never softened.
func (r *Responder) Respond(content string) (string, ResponseCategory) {
	category := classify(content)
	reply := categoryReplies[category]

	if category != CategoryUrgent && !r.withinBusinessHours(r.now()) {
		reply += afterHoursSuffix
	}
	return reply, category
}

func classify(content string) ResponseCategory {
	text := strings.ToLower(strings.TrimSpace(content))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r < 128
	})

	for _, group := range categoryKeywords {
		for _, kw := range group.keywords {
			// Short keywords like "oi" and "hi" match whole words only;
			// longer ones match as substrings.
			if len(kw) <= 3 {
				for _, w := range words {
					if w == kw {
						return group.category
					}
				}
			} else if strings.Contains(text, kw) {
				return group.category
			}
		}
	}
	return CategoryFallback
}

func (r *Responder) withinBusinessHours(t time.Time) bool {
	hour := t.Hour()
	return hour >= r.startHour && hour < r.endHour
}
