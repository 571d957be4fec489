package services

import (
	"log"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/sjcsvns/school-chatbot/models"
)

// systemInstruction is the persona sent as the first prompt part. The style
// constraints are instructions to the model, not enforced on its output.
const systemInstruction = "You are an intelligent chatbot for St Joseph Convent School, Varanasi. " +
	"Use the provided scraped data to answer concisely and meaningfully and do not use *** and double quotes in your answers."

// ContextService assembles the composite context and the final prompt.
type ContextService interface {
	ComposeContext(scraped string) string
	ComposePrompt(compositeContext, message string) []models.ChatMessage
}

type contextServiceImpl struct {
	profiles  ProfileService
	charLimit int
}

func NewContextService(profiles ProfileService, charLimit int) ContextService {
	return &contextServiceImpl{
		profiles:  profiles,
		charLimit: charLimit,
	}
}

// ComposeContext joins the institution profile with the scraped text. The
// scraped portion is trimmed to the configured ceiling; the profile never is.
// The result always exists, even when every scrape failed.
func (s *contextServiceImpl) ComposeContext(scraped string) string {
	scraped = s.trimToLimit(scraped)
	if scraped == "" {
		return s.profiles.Profile()
	}
	return s.profiles.Profile() + "\nother information:\n" + scraped
}

// ComposePrompt builds the three-part prompt: persona instruction, institution
// context, then the user's message. The model depends on this order.
func (s *contextServiceImpl) ComposePrompt(compositeContext, message string) []models.ChatMessage {
	return []models.ChatMessage{
		{Role: "system", Content: systemInstruction},
		{Role: "system", Content: compositeContext},
		{Role: "user", Content: message},
	}
}

// trimToLimit cuts scraped text down to the ceiling on a splitter chunk
// boundary, so the model never sees a truncated word.
func (s *contextServiceImpl) trimToLimit(scraped string) string {
	// The ceiling counts runes throughout: the guard here, the splitter's
	// chunk size, and the hard-cut fallback all use the same unit.
	if s.charLimit <= 0 || utf8.RuneCountInString(scraped) <= s.charLimit {
		return scraped
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.charLimit),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(scraped)
	if err != nil || len(chunks) == 0 {
		log.Printf("SERVICE: Chunked trim failed, hard-cutting at %d chars: %v", s.charLimit, err)
		runes := []rune(scraped)
		if len(runes) <= s.charLimit {
			return scraped
		}
		return string(runes[:s.charLimit])
	}

	log.Printf("SERVICE: Scraped context trimmed from %d to %d chars",
		utf8.RuneCountInString(scraped), utf8.RuneCountInString(chunks[0]))
	return chunks[0]
}
