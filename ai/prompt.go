package ai

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/korjavin/quizpilot/models"
)

const choiceSystemPrompt = `You are a precise quiz answering system. When given a multiple choice question:
1. Analyze the question carefully
2. Use the topic/category (if provided) as context to better understand what the question is asking about
3. Select the ONE correct answer from the provided options
4. Respond with ONLY the exact text of the correct answer
5. Do NOT add any explanations, punctuation, or extra text
6. Do NOT say "The answer is..." or similar phrases
7. Output ONLY the answer text exactly as it appears in the options

Example:
Topic: Mathematics
Question: What is 2+2?
Options: 1. Three 2. Four 3. Five
Your response: Four`

const visionChoiceSystemPrompt = `You are a precise quiz answering system with vision capabilities. When given a multiple choice question with an image:
1. Carefully analyze the image provided
2. Read and understand the question
3. Use the topic/category as context to better understand what the question is asking about
4. Select the ONE correct answer from the provided options based on what you see in the image
5. Respond with ONLY the exact text of the correct answer
6. Do NOT add any explanations, punctuation, or extra text
7. Output ONLY the answer text exactly as it appears in the options`

const numericSystemPrompt = `You are a quiz answering system. Answer with ONLY the EXACT COMPLETE number - nothing else.

CRITICAL RULES:
1. Output ONLY the EXACT FULL NUMBER (no text, no explanations, no thinking, no tags)
2. DO NOT use <think> tags or any other formatting
3. Use the topic/category (if provided) as context to understand what the question is asking about
4. If unsure, make an educated guess based on the topic
5. NEVER say "The answer is..." - just the raw number

UNITS AND COMPLETE NUMBERS:
1. Read the question carefully for units:
   - "Kolik TISÍC..." / "Kolik celých tisíc..." / "v tisících" = answer in thousands (6, not 6000)
   - "Kolik MILIONŮ..." / "v milionech" = answer in millions (12, not 12000000)
   - "Kolik MILIARD..." / "v miliardách" = answer in billions (540, not 540000000000)
   - "celých" does not change the unit
2. If NO unit is specified answer with THE COMPLETE FULL NUMBER:
   - "Kolik obyvatel má Praha?" = 1300000 (not 1.3)
3. DO NOT use shortcuts like "12M", "12 million" or "6k"

Examples:
Question: How many planets are in our solar system?
Your response: 8

Question: Kolik milionů obyvatel má Praha?
Your response: 1

Question: Kolik obyvatel má Praha?
Your response: 1300000

Output format must be EXACTLY: [number in requested unit] - nothing before, nothing after!`

// message content is either a plain string or a list of content parts
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// buildMessages turns a query into the system and user messages for the model
func buildMessages(q models.Query) []chatMessage {
	hasImage := len(q.Image) > 0

	var b strings.Builder
	if q.Topic != "" {
		fmt.Fprintf(&b, "Topic/Category: %s\n\n", q.Topic)
	}

	var system string
	switch {
	case len(q.Options) > 0 && hasImage:
		system = visionChoiceSystemPrompt
		fmt.Fprintf(&b, "Look at the image and answer this question:\n\nQuestion: %s\n\nOptions:\n%s\n\nAnswer:", q.Question, numbered(q.Options))
	case len(q.Options) > 0:
		system = choiceSystemPrompt
		fmt.Fprintf(&b, "Question: %s\n\nOptions:\n%s\n\nAnswer:", q.Question, numbered(q.Options))
	default:
		system = numericSystemPrompt
		fmt.Fprintf(&b, "Question: %s\n\nAnswer (complete full number only):", q.Question)
	}

	messages := []chatMessage{{Role: "system", Content: system}}
	if !hasImage {
		return append(messages, chatMessage{Role: "user", Content: b.String()})
	}

	return append(messages, chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: b.String()},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL(q.Image)}},
		},
	})
}

func numbered(options []string) string {
	lines := make([]string, len(options))
	for i, opt := range options {
		lines[i] = fmt.Sprintf("%d. %s", i+1, opt)
	}
	return strings.Join(lines, "\n")
}

func dataURL(image []byte) string {
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
}
