package whatsapp

import "fmt"

// Invitation is the content of a wedding invitation message.
type Invitation struct {
	GuestName       string
	WeddingDate     string
	WeddingLocation string
	BrideName       string
	GroomName       string
}

func (inv Invitation) Text() string {
	return fmt.Sprintf(
		"🎉 *Wedding Invitation*\n\n"+
			"Dear %s,\n\n"+
			"You are cordially invited to celebrate the wedding of\n\n"+
			"*%s* & *%s*\n\n"+
			"📅 Date: %s\n"+
			"📍 Location: %s\n\n"+
			"Reply with:\n✅ *YES* to accept (add *+2* if you bring two guests)\n❌ *NO* to decline",
		inv.GuestName, inv.BrideName, inv.GroomName, inv.WeddingDate, inv.WeddingLocation,
	)
}

// TableNotice tells a seated guest where they sit.
type TableNotice struct {
	GuestName   string
	TableName   string
	Seats       int
	WeddingDate string
	BrideName   string
	GroomName   string
}

func (n TableNotice) Text() string {
	party := ""
	if n.Seats > 1 {
		party = fmt.Sprintf(" (%d seats reserved for your party)", n.Seats)
	}
	return fmt.Sprintf(
		"💺 Dear %s, you will be seated at *%s*%s at the wedding of %s & %s on %s.",
		n.GuestName, n.TableName, party, n.BrideName, n.GroomName, n.WeddingDate,
	)
}
