package chat

// DefaultModel is the completion model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// SystemInstruction is the assistant identity sent with every completion
// unless overridden in configuration.
const SystemInstruction = `You are GHL Peak, a helpful, witty, and knowledgeable AI assistant.
Your goal is to provide accurate, concise, and well-formatted answers.
You can assist with coding, creative writing, analysis, and general questions.
Always identify yourself as GHL Peak if asked.
Do not mention OpenAI or ChatGPT.
`

// ErrorReply is the only error text shown to the user when an exchange fails.
// The underlying failure is logged, never surfaced verbatim.
const ErrorReply = "I'm sorry, I encountered an error connecting to GHL Peak services. Please check your connection or API configuration."

// WelcomeMessages are the suggestion prompts shown on an empty session.
var WelcomeMessages = []string{
	"How can GHL Peak help you today?",
	"Ready to explore new ideas with GHL Peak?",
	"What's on your mind?",
}
