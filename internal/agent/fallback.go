package agent

import "strings"

// Canned replies for input no skill claims.
const (
	greetingReply = "Hello! How can I help you today?"
	helpReply     = `I can help you with various tasks. Try using slash commands like /weather [city], /calc [expression], or /define [word]. You can also ask me questions in natural language like "What's the weather in Paris?" or "Calculate 25 * 4".`
	thanksReply   = "You're welcome! Is there anything else I can help you with?"
	genericReply  = "I'm not sure how to respond to that. You can try using one of my tools with slash commands like /weather, /calc, or /define."
)

// fallbackRule maps keywords to a reply. Rules are checked in order.
type fallbackRule struct {
	keywords []string
	reply    string
}

// Fallback answers unmatched input with keyword-selected canned replies.
type Fallback struct {
	rules []fallbackRule
}

func NewFallback() *Fallback {
	return &Fallback{rules: []fallbackRule{
		{keywords: []string{"hello", "hi"}, reply: greetingReply},
		{keywords: []string{"help"}, reply: helpReply},
		{keywords: []string{"thank"}, reply: thanksReply},
	}}
}

// Respond returns the reply of the first rule with a keyword contained in
// input, case-insensitively, or the generic reply.
func (f *Fallback) Respond(input string) string {
	lower := strings.ToLower(input)
	for _, rule := range f.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.reply
			}
		}
	}
	return genericReply
}
