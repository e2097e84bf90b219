package store

import (
	"fmt"
	"strings"
	"time"
)

// BuildPGN renders a finished match as PGN text from its SAN move list.
func BuildPGN(whiteName, blackName string, movesSAN []string, result, termination string, date time.Time) string {
	var b strings.Builder
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Chess Arena\"]\n")
	b.WriteString("[Site \"chess-arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(whiteName)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(blackName)))
	if strings.TrimSpace(termination) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(termination))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(movesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(movesSAN[i])))
		if i+1 < len(movesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(movesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
