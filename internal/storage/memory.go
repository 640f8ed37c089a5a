package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"wedding-seating/internal/models"
)

// Snapshot is the on-disk layout of a MemoryStore.
type Snapshot struct {
	Guests []models.Guest `json:"guests"`
	Tables []models.Table `json:"tables"`
}

// MemoryStore keeps guests and tables in memory, optionally mirrored to a
// JSON file after every write. Records keep insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	guests []models.Guest
	tables []models.Table
	file   string
}

// NewMemoryStore creates a store. An empty filePath keeps everything in
// memory; otherwise existing data is loaded from the file.
func NewMemoryStore(filePath string) (*MemoryStore, error) {
	s := &MemoryStore{
		guests: make([]models.Guest, 0),
		tables: make([]models.Table, 0),
		file:   filePath,
	}

	if filePath == "" {
		return s, nil
	}

	// Load existing data if file exists
	if _, err := os.Stat(filePath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("failed to load storage: %w", err)
		}
	}

	return s, nil
}

// NewMemoryStoreFromSnapshot loads records as-is, without validation or link
// repair. Imported data may therefore carry drift for the integrity check to
// find.
func NewMemoryStoreFromSnapshot(snap Snapshot) *MemoryStore {
	s := &MemoryStore{}
	s.restore(snap)
	return s
}

func (s *MemoryStore) AddGuest(_ context.Context, guest *models.Guest) error {
	if err := models.Validate(guest); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.checkpoint()

	i := s.guestIndex(guest.ID)
	if i < 0 && guest.ID == "" && guest.PhoneNumber != "" {
		i = s.guestIndexByPhone(guest.EventID, guest.PhoneNumber)
	}

	if i >= 0 {
		merged := mergeGuest(s.guests[i], *guest)
		if err := checkSeatChange(&merged, s.seatedTable(merged), s.occupiedSeats(merged.TableID, merged.ID)); err != nil {
			return err
		}
		s.guests[i] = merged
		*guest = cloneGuest(merged)
		return s.persist(prev)
	}

	prepareNewGuest(guest)
	s.guests = append(s.guests, cloneGuest(*guest))
	return s.persist(prev)
}

func (s *MemoryStore) GetGuest(_ context.Context, id string) (*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.guestIndex(id)
	if i < 0 {
		return nil, notFound("guest", id)
	}
	g := cloneGuest(s.guests[i])
	return &g, nil
}

func (s *MemoryStore) GetGuestByPhone(_ context.Context, eventID, phoneNumber string) (*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.guestIndexByPhone(eventID, phoneNumber)
	if i < 0 {
		return nil, notFound("guest with phone", phoneNumber)
	}
	g := cloneGuest(s.guests[i])
	return &g, nil
}

func (s *MemoryStore) ListGuests(_ context.Context, eventID string) ([]models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Guest, 0, len(s.guests))
	for _, g := range s.guests {
		if g.EventID == eventID {
			result = append(result, cloneGuest(g))
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdateRSVP(_ context.Context, guestID string, update RSVPUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.checkpoint()

	i := s.guestIndex(guestID)
	if i < 0 {
		return notFound("guest", guestID)
	}

	updated := cloneGuest(s.guests[i])
	if err := applyRSVP(&updated, update); err != nil {
		return err
	}
	if err := checkSeatChange(&updated, s.seatedTable(updated), s.occupiedSeats(updated.TableID, updated.ID)); err != nil {
		return err
	}
	s.guests[i] = updated
	return s.persist(prev)
}

// DeleteGuest removes the guest and its table link together.
func (s *MemoryStore) DeleteGuest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.checkpoint()

	i := s.guestIndex(id)
	if i < 0 {
		return notFound("guest", id)
	}
	for ti := range s.tables {
		s.tables[ti].AssignedGuests = removeID(s.tables[ti].AssignedGuests, id)
	}
	s.guests = slices.Delete(s.guests, i, i+1)
	return s.persist(prev)
}

func (s *MemoryStore) AddTable(_ context.Context, table *models.Table) error {
	if err := models.Validate(table); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.checkpoint()

	if i := s.tableIndex(table.ID); i >= 0 {
		existing := &s.tables[i]
		if table.Capacity < s.occupiedSeats(existing.ID, "") {
			return fmt.Errorf("shrinking table %s to %d seats: %w", existing.Name, table.Capacity, models.ErrCapacityViolation)
		}
		existing.Name = table.Name
		existing.Capacity = table.Capacity
		existing.IsLocked = table.IsLocked
		*table = cloneTable(*existing)
		return s.persist(prev)
	}

	prepareNewTable(table)
	s.tables = append(s.tables, cloneTable(*table))
	return s.persist(prev)
}

func (s *MemoryStore) GetTable(_ context.Context, id string) (*models.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.tableIndex(id)
	if i < 0 {
		return nil, notFound("table", id)
	}
	t := cloneTable(s.tables[i])
	return &t, nil
}

func (s *MemoryStore) ListTables(_ context.Context, eventID string) ([]models.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Table, 0, len(s.tables))
	for _, t := range s.tables {
		if t.EventID == eventID {
			result = append(result, cloneTable(t))
		}
	}
	return result, nil
}

func (s *MemoryStore) SetTableLock(_ context.Context, tableID string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.checkpoint()

	i := s.tableIndex(tableID)
	if i < 0 {
		return notFound("table", tableID)
	}
	s.tables[i].IsLocked = locked
	return s.persist(prev)
}

// DeleteTable removes the table and unseats everyone listed at it.
func (s *MemoryStore) DeleteTable(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.checkpoint()

	i := s.tableIndex(id)
	if i < 0 {
		return notFound("table", id)
	}
	if s.tables[i].IsLocked {
		return fmt.Errorf("deleting table %s: %w", s.tables[i].Name, models.ErrLockedTable)
	}
	for gi := range s.guests {
		if s.guests[gi].TableID == id {
			s.guests[gi].TableID = ""
		}
	}
	s.tables = slices.Delete(s.tables, i, i+1)
	return s.persist(prev)
}

// CommitAssignment links guest and table on both sides, moving the guest
// off a previous table in the same write.
func (s *MemoryStore) CommitAssignment(_ context.Context, guestID, tableID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.checkpoint()

	gi := s.guestIndex(guestID)
	if gi < 0 {
		return notFound("guest", guestID)
	}
	ti := s.tableIndex(tableID)
	if ti < 0 {
		return notFound("table", tableID)
	}
	guest := &s.guests[gi]
	target := &s.tables[ti]

	if guest.TableID == tableID && target.HasGuest(guestID) {
		return nil
	}

	var previous *models.Table
	if guest.TableID != "" && guest.TableID != tableID {
		if pi := s.tableIndex(guest.TableID); pi >= 0 {
			previous = &s.tables[pi]
		}
	}

	if err := checkAssignment(guest, target, previous, s.occupiedSeats(tableID, guestID)); err != nil {
		return err
	}

	if previous != nil {
		previous.AssignedGuests = removeID(previous.AssignedGuests, guestID)
	}
	if !target.HasGuest(guestID) {
		target.AssignedGuests = append(target.AssignedGuests, guestID)
	}
	guest.TableID = tableID
	return s.persist(prev)
}

// ClearAssignment unlinks the guest from its table on both sides. Clearing an
// unseated guest is a no-op.
func (s *MemoryStore) ClearAssignment(_ context.Context, guestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.checkpoint()

	gi := s.guestIndex(guestID)
	if gi < 0 {
		return notFound("guest", guestID)
	}
	guest := &s.guests[gi]
	if guest.TableID == "" {
		return nil
	}

	if ti := s.tableIndex(guest.TableID); ti >= 0 {
		table := &s.tables[ti]
		if table.IsLocked {
			return fmt.Errorf("removing guest from table %s: %w", table.Name, models.ErrLockedTable)
		}
		table.AssignedGuests = removeID(table.AssignedGuests, guestID)
	}
	guest.TableID = ""
	return s.persist(prev)
}

// Snapshot returns a deep copy of everything in the store.
func (s *MemoryStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *MemoryStore) snapshot() Snapshot {
	snap := Snapshot{
		Guests: make([]models.Guest, 0, len(s.guests)),
		Tables: make([]models.Table, 0, len(s.tables)),
	}
	for _, g := range s.guests {
		snap.Guests = append(snap.Guests, cloneGuest(g))
	}
	for _, t := range s.tables {
		snap.Tables = append(snap.Tables, cloneTable(t))
	}
	return snap
}

// checkpoint captures the records before a write so persist can undo it.
// It returns nil for stores without a file.
func (s *MemoryStore) checkpoint() *Snapshot {
	if s.file == "" {
		return nil
	}
	snap := s.snapshot()
	return &snap
}

// persist writes the file. When the write fails the records are rolled back
// to prev, so memory never holds changes the file does not.
func (s *MemoryStore) persist(prev *Snapshot) error {
	if err := s.save(); err != nil {
		if prev != nil {
			s.restore(*prev)
		}
		return fmt.Errorf("failed to save storage: %w", err)
	}
	return nil
}

// Save writes the store to its file
func (s *MemoryStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.save()
}

func (s *MemoryStore) save() error {
	if s.file == "" {
		return nil
	}

	data, err := json.MarshalIndent(Snapshot{Guests: s.guests, Tables: s.tables}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return os.WriteFile(s.file, data, 0644)
}

// Load reads the store from its file
func (s *MemoryStore) Load() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var snap Snapshot
	if len(data) > 0 {
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.restore(snap)
	return nil
}

func (s *MemoryStore) Close() error {
	return s.Save()
}

func (s *MemoryStore) restore(snap Snapshot) {
	s.guests = make([]models.Guest, 0, len(snap.Guests))
	for _, g := range snap.Guests {
		s.guests = append(s.guests, cloneGuest(g))
	}
	s.tables = make([]models.Table, 0, len(snap.Tables))
	for _, t := range snap.Tables {
		s.tables = append(s.tables, cloneTable(t))
	}
}

func (s *MemoryStore) guestIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.guests, func(g models.Guest) bool { return g.ID == id })
}

func (s *MemoryStore) guestIndexByPhone(eventID, phoneNumber string) int {
	return slices.IndexFunc(s.guests, func(g models.Guest) bool {
		return g.EventID == eventID && g.PhoneNumber == phoneNumber
	})
}

func (s *MemoryStore) tableIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.tables, func(t models.Table) bool { return t.ID == id })
}

func (s *MemoryStore) seatedTable(g models.Guest) *models.Table {
	if i := s.tableIndex(g.TableID); i >= 0 {
		return &s.tables[i]
	}
	return nil
}

// occupiedSeats sums seat requirements of guests listed at the table,
// skipping excludeGuestID and ids that resolve to no guest.
func (s *MemoryStore) occupiedSeats(tableID, excludeGuestID string) int {
	ti := s.tableIndex(tableID)
	if ti < 0 {
		return 0
	}
	total := 0
	for _, id := range s.tables[ti].AssignedGuests {
		if id == excludeGuestID {
			continue
		}
		if gi := s.guestIndex(id); gi >= 0 {
			total += s.guests[gi].SeatsNeeded()
		}
	}
	return total
}

func cloneGuest(g models.Guest) models.Guest {
	g.DietaryRestrictions = slices.Clone(g.DietaryRestrictions)
	return g
}

func cloneTable(t models.Table) models.Table {
	t.AssignedGuests = slices.Clone(t.AssignedGuests)
	if t.AssignedGuests == nil {
		t.AssignedGuests = []string{}
	}
	return t
}

func removeID(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}
