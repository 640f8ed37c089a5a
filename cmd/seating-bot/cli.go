package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"wedding-seating/internal/config"
	"wedding-seating/internal/handler"
	"wedding-seating/internal/models"
	"wedding-seating/internal/seating"
	"wedding-seating/internal/storage"
)

// CLI is the interactive planner menu.
type CLI struct {
	cfg     *config.Config
	repo    storage.Repository
	seating *seating.Service
	rsvp    *handler.RSVPHandler
	scanner *bufio.Scanner
}

// Run reads commands from stdin until exit or end of input.
func (c *CLI) Run(ctx context.Context) {
	c.scanner = bufio.NewScanner(os.Stdin)

	for {
		fmt.Println("\nCommands:")
		fmt.Println("  1. Send invitation")
		fmt.Println("  2. View all guests")
		fmt.Println("  3. View guests by status")
		fmt.Println("  4. Record RSVP")
		fmt.Println("  5. Add table")
		fmt.Println("  6. View tables")
		fmt.Println("  7. Auto-arrange seating")
		fmt.Println("  8. Assign guest to table")
		fmt.Println("  9. Remove guest from table")
		fmt.Println(" 10. Lock/unlock table")
		fmt.Println(" 11. Check seating integrity")
		fmt.Println(" 12. Send table notices")
		fmt.Println(" 13. Exit")
		fmt.Print("\nEnter command (1-13): ")

		if !c.scanner.Scan() {
			return
		}

		switch strings.TrimSpace(c.scanner.Text()) {
		case "1":
			c.sendInvitation(ctx)
		case "2":
			c.viewGuests(ctx, "")
		case "3":
			c.viewGuestsByStatus(ctx)
		case "4":
			c.recordRSVP(ctx)
		case "5":
			c.addTable(ctx)
		case "6":
			c.viewTables(ctx)
		case "7":
			c.autoArrange(ctx)
		case "8":
			c.assign(ctx)
		case "9":
			c.unassign(ctx)
		case "10":
			c.toggleLock(ctx)
		case "11":
			c.checkIntegrity(ctx)
		case "12":
			c.sendTableNotices(ctx)
		case "13":
			fmt.Println("Exiting...")
			return
		default:
			fmt.Println("Invalid command. Please try again.")
		}
	}
}

func (c *CLI) prompt(label string) string {
	fmt.Print(label)
	if !c.scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(c.scanner.Text())
}

func (c *CLI) confirm(label string) bool {
	answer := strings.ToLower(c.prompt(label + " (y/N): "))
	return answer == "y" || answer == "yes"
}

func (c *CLI) sendInvitation(ctx context.Context) {
	guest := models.Guest{
		Name:         c.prompt("Enter guest name: "),
		PhoneNumber:  c.prompt("Enter phone number (with country code, e.g., 1234567890): "),
		Side:         models.Side(strings.ToLower(c.prompt("Side (bride/groom): "))),
		Relationship: c.prompt("Relationship (Parent, Sibling, Friend, ...): "),
	}
	if raw := c.prompt("Additional guests (empty for none): "); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Println("Additional guests must be a number.")
			return
		}
		guest.AdditionalGuestCount = n
	}
	guest.DietaryRestrictions = splitList(c.prompt("Dietary restrictions (comma separated, empty for none): "))

	fmt.Printf("\nSending invitation to %s (%s)...\n", guest.Name, guest.PhoneNumber)
	if err := c.rsvp.SendInvitation(ctx, guest); err != nil {
		fmt.Printf("❌ Error sending invitation: %v\n", err)
		return
	}
	fmt.Println("✅ Invitation sent successfully!")
}

// recordRSVP applies an answer received outside WhatsApp, e.g. "yes +2".
func (c *CLI) recordRSVP(ctx context.Context) {
	guestID := c.prompt("Guest ID: ")
	answer := c.prompt("Answer (yes/no, add +N for additional guests): ")

	reply, err := c.rsvp.RecordReply(ctx, guestID, answer)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}
	fmt.Printf("✅ RSVP recorded as %s\n", reply.Status)
}

func (c *CLI) viewGuests(ctx context.Context, status models.RSVPStatus) {
	guests, err := c.repo.ListGuests(ctx, c.cfg.EventID)
	if err != nil {
		fmt.Printf("❌ Error listing guests: %v\n", err)
		return
	}

	shown := 0
	fmt.Println(strings.Repeat("-", 60))
	for _, g := range guests {
		if status != "" && g.RSVPStatus != status {
			continue
		}
		shown++
		fmt.Printf("ID: %s\n", g.ID)
		fmt.Printf("Name: %s (+%d)\n", g.Name, g.AdditionalGuestCount)
		fmt.Printf("Phone: %s\n", g.PhoneNumber)
		fmt.Printf("Status: %s\n", g.RSVPStatus)
		fmt.Printf("Group: %s / %s\n", g.Side, g.Relationship)
		if len(g.DietaryRestrictions) > 0 {
			fmt.Printf("Dietary: %s\n", strings.Join(g.DietaryRestrictions, ", "))
		}
		if g.TableID != "" {
			fmt.Printf("Table: %s\n", g.TableID)
		}
		if !g.RSVPDate.IsZero() {
			fmt.Printf("RSVP Date: %s\n", g.RSVPDate.Format("2006-01-02 15:04:05"))
		}
		fmt.Println(strings.Repeat("-", 60))
	}
	fmt.Printf("📋 %d guests\n", shown)
}

func (c *CLI) viewGuestsByStatus(ctx context.Context) {
	fmt.Println("\nSelect status:")
	fmt.Println("  1. Pending")
	fmt.Println("  2. Accepted")
	fmt.Println("  3. Declined")

	statuses := map[string]models.RSVPStatus{
		"1": models.RSVPPending,
		"2": models.RSVPAccepted,
		"3": models.RSVPDeclined,
	}
	status, ok := statuses[c.prompt("Enter choice (1-3): ")]
	if !ok {
		fmt.Println("Invalid choice.")
		return
	}
	c.viewGuests(ctx, status)
}

func (c *CLI) addTable(ctx context.Context) {
	name := c.prompt("Table name: ")
	capacity, err := strconv.Atoi(c.prompt("Capacity: "))
	if err != nil {
		fmt.Println("Capacity must be a number.")
		return
	}

	table := models.Table{EventID: c.cfg.EventID, Name: name, Capacity: capacity}
	if err := c.repo.AddTable(ctx, &table); err != nil {
		fmt.Printf("❌ Error adding table: %v\n", err)
		return
	}
	fmt.Printf("✅ Table %s added (ID: %s)\n", table.Name, table.ID)
}

func (c *CLI) viewTables(ctx context.Context) {
	tables, err := c.repo.ListTables(ctx, c.cfg.EventID)
	if err != nil {
		fmt.Printf("❌ Error listing tables: %v\n", err)
		return
	}
	guests, err := c.repo.ListGuests(ctx, c.cfg.EventID)
	if err != nil {
		fmt.Printf("❌ Error listing guests: %v\n", err)
		return
	}
	byID := make(map[string]models.Guest, len(guests))
	for _, g := range guests {
		byID[g.ID] = g
	}

	fmt.Println(strings.Repeat("-", 60))
	for _, t := range tables {
		seats := 0
		names := make([]string, 0, len(t.AssignedGuests))
		for _, id := range t.AssignedGuests {
			g := byID[id]
			seats += g.SeatsNeeded()
			names = append(names, g.Name)
		}
		lock := ""
		if t.IsLocked {
			lock = " 🔒"
		}
		fmt.Printf("%s%s (ID: %s) %d/%d seats\n", t.Name, lock, t.ID, seats, t.Capacity)
		if len(names) > 0 {
			fmt.Printf("  %s\n", strings.Join(names, ", "))
		}
	}
	fmt.Println(strings.Repeat("-", 60))
}

func (c *CLI) autoArrange(ctx context.Context) {
	opts := seating.DefaultOptions()
	opts.Reset = c.confirm("Clear unlocked tables first?")
	opts.SplitOversizedGroups = c.confirm("Split groups that fit no table?")
	opts.BalanceSides = c.confirm("Balance bride and groom sides?")
	opts.ConsiderDietary = c.confirm("Consider dietary restrictions?")
	if raw := c.prompt("Max guests per table (empty for table capacity): "); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Println("Max guests must be a number.")
			return
		}
		opts.MaxGuestsPerTable = n
	}

	result, err := c.seating.AutoArrange(ctx, c.cfg.EventID, opts)
	if err != nil {
		fmt.Printf("❌ Arrangement failed: %v\n", err)
		return
	}

	fmt.Printf("\n✅ Seated %d guests (%d seats)\n", result.AssignedCount, result.SeatsAssigned)
	for _, a := range result.Assignments {
		fmt.Printf("  %s/%s -> %s (%d seats, score %.2f)\n", a.Side, a.Relationship, a.TableName, a.Seats, a.Score)
	}
	if len(result.UnplacedGuestIDs) > 0 {
		fmt.Printf("⚠️  %d guests unplaced\n", len(result.UnplacedGuestIDs))
	}
	for _, w := range result.Warnings {
		fmt.Printf("  ⚠️  %s\n", w)
	}
}

func (c *CLI) assign(ctx context.Context) {
	guestID := c.prompt("Guest ID: ")
	tableID := c.prompt("Table ID: ")
	if err := c.seating.Assign(ctx, guestID, tableID); err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}
	fmt.Println("✅ Guest assigned")
}

func (c *CLI) unassign(ctx context.Context) {
	if err := c.seating.Unassign(ctx, c.prompt("Guest ID: ")); err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}
	fmt.Println("✅ Guest removed from table")
}

func (c *CLI) toggleLock(ctx context.Context) {
	tableID := c.prompt("Table ID: ")
	table, err := c.repo.GetTable(ctx, tableID)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}
	if err := c.seating.SetTableLock(ctx, tableID, !table.IsLocked); err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}
	fmt.Printf("✅ Table %s locked=%t\n", table.Name, !table.IsLocked)
}

func (c *CLI) checkIntegrity(ctx context.Context) {
	report, err := c.seating.CheckIntegrity(ctx, c.cfg.EventID)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}
	if report.OK() {
		fmt.Println("✅ Guest and table records agree")
		return
	}
	fmt.Printf("⚠️  %d issues found:\n", len(report.Issues))
	for _, w := range report.Warnings() {
		fmt.Printf("  %s\n", w)
	}
}

func (c *CLI) sendTableNotices(ctx context.Context) {
	sent, err := c.rsvp.SendTableNotices(ctx)
	fmt.Printf("✅ %d table notices sent\n", sent)
	if err != nil {
		fmt.Printf("❌ Some notices failed: %v\n", err)
	}
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
