package session

import (
	"strings"

	"callbot/internal/domain"
)

const notProvided = "Not provided"

// Instructions is the booking policy handed to the model on every turn.
var Instructions = []string{
	"The responses shouldn't be too text heavy",
	"If the user's name is not provided, ask for it",
	"If you have the name but no time preference, ask for preferred appointment time",
	"If you have both name and time, suggest available slots close to their preference",
	"Once all details are confirmed, proceed with booking confirmation",
}

// RenderTurn formats a turn the way it appears in the prompt history.
func RenderTurn(t domain.Turn) string {
	if t.Speaker == domain.SpeakerBot {
		return "Bot: " + t.Text
	}
	return "User: " + t.Text
}

// History returns the last window turns, oldest first, space-joined.
func History(turns []domain.Turn, window int) string {
	if window <= 0 || len(turns) == 0 {
		return ""
	}
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	parts := make([]string, len(turns))
	for i, t := range turns {
		parts[i] = RenderTurn(t)
	}
	return strings.Join(parts, " ")
}

// BuildPrompt renders the system instruction block for a turn. It has no
// side effects. The knowledge section is left out when contexts is empty.
func BuildPrompt(profile domain.UserProfile, turns []domain.Turn, window int, contexts []string) string {
	var b strings.Builder

	b.WriteString("Current user information:\n")
	b.WriteString("Name: " + orNotProvided(profile.Name) + "\n")
	b.WriteString("Contact: " + orNotProvided(profile.Contact) + "\n")
	b.WriteString("Preferred Time: " + orNotProvided(profile.PreferredTime) + "\n")

	b.WriteString("\nPrevious conversation:\n")
	b.WriteString(History(turns, window) + "\n")

	var kept []string
	for _, c := range contexts {
		if c = strings.TrimSpace(c); c != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) > 0 {
		b.WriteString("\nKnowledge base context:\n")
		b.WriteString(strings.Join(kept, "\n\n") + "\n")
	}

	b.WriteString("\nInstructions:\n")
	for _, line := range Instructions {
		b.WriteString("- " + line + "\n")
	}
	return b.String()
}

func orNotProvided(v string) string {
	if v == "" {
		return notProvided
	}
	return v
}
