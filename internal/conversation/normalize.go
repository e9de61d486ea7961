package conversation

import (
	"strings"
	"unicode"
)

type Intent string

const (
	IntentNone     Intent = ""
	IntentPurchase Intent = "purchase"
	IntentRenew    Intent = "renew"
	IntentInquire  Intent = "inquire"
	IntentGreeting Intent = "greeting"
	IntentHelp     Intent = "help"
	IntentPrice    Intent = "price"
	IntentDevice   Intent = "device"
)

var cancelWords = map[string]struct{}{
	"cancelar":  {},
	"sair":      {},
	"parar":     {},
	"finalizar": {},
	"voltar":    {},
}

// intentTable is checked in order; the first intent with a matching phrase wins.
var intentTable = []struct {
	intent  Intent
	phrases []string
}{
	{IntentPurchase, []string{"comprar", "quero lista", "adquirir", "assinar", "criar lista", "nova lista", "contratar"}},
	{IntentRenew, []string{"renovar", "renovacao", "renovação", "estender", "prolongar", "continuar", "mais tempo"}},
	{IntentInquire, []string{"consultar", "meus dados", "minha lista", "minhas listas", "ver dados", "status"}},
	{IntentGreeting, []string{"oi", "olá", "ola", "hey", "hello", "bom dia", "boa tarde", "boa noite"}},
	{IntentHelp, []string{"ajuda", "help", "socorro", "não sei", "nao sei", "como", "menu", "opções", "opcoes"}},
	{IntentPrice, []string{"preço", "preco", "valor", "quanto custa", "quanto é", "quanto fica", "custo"}},
	{IntentDevice, []string{"dispositivo", "aparelho", "celular", "tv", "smart tv", "android", "ios", "windows", "funciona"}},
}

// Normalize trims and lowercases inbound text.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// IsCancel reports whether any word of the input is a cancel word.
func IsCancel(input string) bool {
	for _, tok := range tokens(input) {
		if _, ok := cancelWords[tok]; ok {
			return true
		}
	}
	return false
}

// DetectIntent matches whole-word phrases, so "oito" never reads as "oi".
func DetectIntent(input string) Intent {
	words := tokens(input)
	for _, entry := range intentTable {
		for _, phrase := range entry.phrases {
			if containsPhrase(words, tokens(phrase)) {
				return entry.intent
			}
		}
	}
	return IntentNone
}

func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j := range phrase {
			if words[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

type confirmAnswer int

const (
	answerOther confirmAnswer = iota
	answerYes
	answerNo
)

func classifyConfirm(input string) confirmAnswer {
	switch input {
	case "1", "sim", "confirmar", "ok", "s":
		return answerYes
	case "2", "não", "nao", "n":
		return answerNo
	default:
		return answerOther
	}
}
