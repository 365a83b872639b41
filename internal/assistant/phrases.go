package assistant

import "strings"

// Phrases are the fixed things the assistant says outside of model answers.
type Phrases struct {
	Welcome      string
	Goodbye      string
	NotHeard     string
	SelfTest     string
	TestQuestion string
}

var phrasebook = map[string]Phrases{
	"pt": {
		Welcome:      "Olá! Eu sou seu assistente de voz. Como posso ajudá-lo hoje?",
		Goodbye:      "Até logo! Foi um prazer ajudá-lo.",
		NotHeard:     "Desculpe, não consegui entender. Pode repetir, por favor?",
		SelfTest:     "Teste de síntese de voz funcionando!",
		TestQuestion: "Olá, como você está?",
	},
	"en": {
		Welcome:      "Hello! I am your voice assistant. How can I help you today?",
		Goodbye:      "Goodbye! It was a pleasure to help you.",
		NotHeard:     "Sorry, I could not understand. Could you repeat that, please?",
		SelfTest:     "Speech synthesis test working!",
		TestQuestion: "Hello, how are you?",
	},
}

// PhrasesFor matches on the language family ("pt-br" uses "pt"); unknown
// languages get English.
func PhrasesFor(language string) Phrases {
	code := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if p, ok := phrasebook[code]; ok {
		return p
	}
	return phrasebook["en"]
}
