package notify

import "github.com/lahjaprojekti/lahja-go/internal/domain"

// StatusMessageBody returns the SMS body for a gift status transition, in
// the giver's language (Finnish unless "en").
func StatusMessageBody(messageKey, language, toName string) string {
	en := language == "en"

	switch messageKey {
	case domain.MessageKeyGiftPending:
		if en {
			return "Your gift reservation for " + toName + " has been received. We will confirm it shortly."
		}
		return "Lahjavarauksesi vastaanottajalle " + toName + " on vastaanotettu. Vahvistamme sen pian."
	case domain.MessageKeyGiftConfirmed:
		if en {
			return "Your gift for " + toName + " is confirmed. An artist will deliver it at the reserved time."
		}
		return "Lahjasi vastaanottajalle " + toName + " on vahvistettu. Artisti toimittaa sen varattuna aikana."
	}

	return ""
}
