package orchestrator

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tutor/internal/domain"
)

var preambleMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Indonesian,
})

type preambleText struct {
	base    string
	subject string
	level   string
}

var preambles = map[language.Base]preambleText{
	mustBase(language.English): {
		base:    "You are a patient tutor. Guide the student step by step, ask short questions to check understanding, and never just hand over final answers to homework.",
		subject: " The subject is %s.",
		level:   " Pitch explanations at the %s level.",
	},
	mustBase(language.Indonesian): {
		base:    "Kamu adalah tutor yang sabar. Bimbing siswa langkah demi langkah, ajukan pertanyaan singkat untuk memeriksa pemahaman, dan jangan langsung memberikan jawaban akhir pekerjaan rumah.",
		subject: " Mata pelajarannya adalah %s.",
		level:   " Sesuaikan penjelasan untuk tingkat %s.",
	},
}

func mustBase(tag language.Tag) language.Base {
	b, _ := tag.Base()
	return b
}

// Preamble builds the system turn for a session in the caller's locale.
func Preamble(locale string, session domain.Session) domain.SystemTurn {
	tag, _ := language.MatchStrings(preambleMatcher, locale)
	text, ok := preambles[mustBase(tag)]
	if !ok {
		text = preambles[mustBase(language.English)]
	}
	sb := &strings.Builder{}
	sb.WriteString(text.base)
	if subject := strings.TrimSpace(session.Subject); subject != "" {
		fmt.Fprintf(sb, text.subject, cases.Title(tag).String(subject))
	}
	if level := strings.TrimSpace(session.Level); level != "" {
		fmt.Fprintf(sb, text.level, level)
	}
	return domain.SystemTurn{Content: sb.String()}
}
