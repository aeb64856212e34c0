package worldchat

// ShouldDeliver decides whether a broadcast from sender reaches recipient.
func ShouldDeliver(sender, recipient Participant, s Settings) bool {
	if sender == nil || recipient == nil {
		return false
	}
	if s.CrossAffiliation {
		return true
	}
	return sender.Affiliation() == recipient.Affiliation()
}
