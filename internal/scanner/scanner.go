package scanner

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-steam-librarian/internal/api"
	"go-steam-librarian/internal/catalog"
	"go-steam-librarian/internal/models"
	"go-steam-librarian/internal/progress"
	"go-steam-librarian/internal/report"
	"go-steam-librarian/internal/settings"
)

// Name is stamped on entries this scanner creates.
const Name = "Steam Library scanner"

// ErrCancelled reports that the cancellation probe fired mid-scan. Nothing
// has been committed when it is returned.
var ErrCancelled = progress.ErrCancelled

// Item is the common shape reconciliation works on: remote candidates and
// stored entries both carry an app id, a display name and a raw payload.
type Item interface {
	Identity() int64
	DisplayName() string
	Payload() json.RawMessage
}

// RemoteCandidate is one owned-games entry plus its verbatim payload, kept
// so the stored entry preserves fields we do not model.
type RemoteCandidate struct {
	Game models.OwnedGame
	Raw  json.RawMessage
}

func (c RemoteCandidate) Identity() int64          { return c.Game.AppID }
func (c RemoteCandidate) DisplayName() string      { return c.Game.Name }
func (c RemoteCandidate) Payload() json.RawMessage { return c.Raw }

var (
	_ Item = RemoteCandidate{}
	_ Item = models.CatalogEntry{}
)

// ParseOwnedGames decodes a GetOwnedGames response body into candidates.
func ParseOwnedGames(body []byte) ([]RemoteCandidate, error) {
	var envelope models.OwnedGamesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed owned-games response: %w", err)
	}

	candidates := make([]RemoteCandidate, 0, len(envelope.Response.Games))
	for _, raw := range envelope.Response.Games {
		var game models.OwnedGame
		if err := json.Unmarshal(raw, &game); err != nil {
			return nil, fmt.Errorf("malformed owned-games entry: %w", err)
		}
		candidates = append(candidates, RemoteCandidate{Game: game, Raw: raw})
	}
	return candidates, nil
}

func identitySet[T Item](items []T) map[int64]struct{} {
	set := make(map[int64]struct{}, len(items))
	for _, item := range items {
		set[item.Identity()] = struct{}{}
	}
	return set
}

// Options tunes a reconcile pass. The zero value reconciles silently with
// freshly minted uuids.
type Options struct {
	Progress  progress.Reporter
	Report    report.Writer
	MintID    func() string
	ScannedBy string
}

func (o Options) withDefaults() Options {
	if o.Progress == nil {
		o.Progress = progress.Nop{}
	}
	if o.Report == nil {
		o.Report = report.Discard{}
	}
	if o.MintID == nil {
		o.MintID = uuid.NewString
	}
	if o.ScannedBy == "" {
		o.ScannedBy = Name
	}
	return o
}

// Result is the outcome of one reconcile pass. Entries is the complete
// post-scan collection: the surviving stored entries followed by the new
// ones. Feeding Entries back in with the same candidates yields no changes.
type Result struct {
	Entries []models.CatalogEntry
	New     []models.CatalogEntry
	Dead    []models.CatalogEntry
}

// Reconcile diffs the remote candidates against the stored entries. Stored
// entries absent from the remote snapshot come back in Dead; candidates
// absent from the store are minted into new entries, processed in display
// name order. Duplicate app ids within one snapshot collapse to the first
// occurrence. The cancellation probe is polled after every item; once it
// fires Reconcile returns ErrCancelled and the caller must discard the pass.
func Reconcile(candidates []RemoteCandidate, entries []models.CatalogEntry, opts Options) (Result, error) {
	opts = opts.withDefaults()

	kept, dead, err := deadPass(candidates, entries, opts.Progress)
	if err != nil {
		return Result{}, err
	}

	added, err := newPass(candidates, kept, opts)
	if err != nil {
		return Result{}, err
	}

	all := make([]models.CatalogEntry, 0, len(kept)+len(added))
	all = append(all, kept...)
	all = append(all, added...)
	return Result{Entries: all, New: added, Dead: dead}, nil
}

func deadPass(candidates []RemoteCandidate, entries []models.CatalogEntry, rep progress.Reporter) (kept, dead []models.CatalogEntry, err error) {
	if len(entries) == 0 {
		log.Info("Collection is empty. No dead entry check.")
		return entries, nil, nil
	}

	log.Infof("Checking for dead entries in %d stored games", len(entries))
	rep.Start(len(entries), "Checking for dead entries ...")
	defer rep.End()

	liveIDs := identitySet(candidates)
	kept = make([]models.CatalogEntry, 0, len(entries))
	for i, entry := range entries {
		rep.Update(i+1, entry.Name)
		if _, live := liveIDs[entry.AppID]; live {
			kept = append(kept, entry)
		} else {
			log.Infof("Not found. Marking as dead: #%d %s", entry.AppID, entry.Name)
			dead = append(dead, entry)
		}
		if rep.IsCancelled() {
			return nil, nil, ErrCancelled
		}
	}
	return kept, dead, nil
}

func newPass(candidates []RemoteCandidate, entries []models.CatalogEntry, opts Options) ([]models.CatalogEntry, error) {
	opts.Progress.Start(len(candidates), "Scanning found items")
	defer opts.Progress.End()
	opts.Report.Writeln("Processing games ...")

	sorted := make([]RemoteCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DisplayName() < sorted[j].DisplayName()
	})

	known := identitySet(entries)
	var added []models.CatalogEntry
	for i, candidate := range sorted {
		opts.Progress.Update(i+1, candidate.DisplayName())

		if _, exists := known[candidate.Identity()]; exists {
			log.Debugf("  ID #%d already in collection. Skipping", candidate.Identity())
		} else {
			opts.Report.Writeln(fmt.Sprintf(">>> title: %s", candidate.DisplayName()))
			opts.Report.Writeln(fmt.Sprintf(">>> ID: %d", candidate.Identity()))
			added = append(added, mintEntry(candidate, opts))
			known[candidate.Identity()] = struct{}{}
		}

		if opts.Progress.IsCancelled() {
			log.Info("Cancel requested while scanning. No changes have been made.")
			return nil, ErrCancelled
		}
	}
	return added, nil
}

func mintEntry(c RemoteCandidate, opts Options) models.CatalogEntry {
	return models.CatalogEntry{
		ID:         opts.MintID(),
		AppID:      c.Identity(),
		Name:       c.DisplayName(),
		SourceName: c.DisplayName(),
		ScannedBy:  opts.ScannedBy,
		Raw:        c.Payload(),
		Status:     models.StatusScanned,
		ScannedAt:  time.Now().Unix(),
	}
}

// Scanner ties the owned-games endpoint, the reconcile pass and the catalog
// store together for one source.
type Scanner struct {
	client   api.JSONGetter
	store    *catalog.Store
	settings settings.Store
	progress progress.Reporter
	report   report.Writer
}

func New(client api.JSONGetter, store *catalog.Store, st settings.Store, rep progress.Reporter, rw report.Writer) *Scanner {
	if rep == nil {
		rep = progress.Nop{}
	}
	if rw == nil {
		rw = report.Discard{}
	}
	return &Scanner{client: client, store: store, settings: st, progress: rep, report: rw}
}

// Scan fetches the owned games for the configured account, reconciles them
// against the stored collection for source and commits the result. On any
// error, including cancellation, the stored collection is left untouched.
func (s *Scanner) Scan(source string) (models.ScanResult, error) {
	apiKey := s.settings.GetString(settings.APIKey)
	if apiKey == "" {
		return models.ScanResult{}, api.ErrMissingAPIKey
	}
	steamID := s.settings.GetString(settings.SteamID)
	if steamID == "" {
		return models.ScanResult{}, api.ErrMissingSteamID
	}

	s.progress.Start(0, "Reading Steam account...")
	s.report.Writeln(fmt.Sprintf("Reading Steam account id %s", steamID))

	ownedURL := models.OwnedGamesURL(apiKey, steamID)
	body, err := s.client.GetJSON(ownedURL)
	if err != nil && api.IsTransient(err) {
		log.WithError(err).Warn("Owned-games request failed, retrying once")
		body, err = s.client.GetJSON(ownedURL)
	}
	if err != nil {
		s.progress.End()
		return models.ScanResult{}, fmt.Errorf("fetching owned games: %w", err)
	}
	candidates, err := ParseOwnedGames(body)
	if err != nil {
		s.progress.End()
		return models.ScanResult{}, err
	}
	s.report.Writeln(fmt.Sprintf("  Library scanner found %d games", len(candidates)))
	s.progress.End()

	entries, err := s.store.Load(source)
	if err != nil {
		return models.ScanResult{}, err
	}

	res, err := Reconcile(candidates, entries, Options{
		Progress:  s.progress,
		Report:    s.report,
		ScannedBy: Name,
	})
	if err != nil {
		return models.ScanResult{}, err
	}

	if err := s.store.Commit(source, res.Entries); err != nil {
		return models.ScanResult{}, err
	}

	result := models.ScanResult{
		NewCount:  len(res.New),
		DeadCount: len(res.Dead),
		Total:     len(res.Entries),
	}
	s.report.Writeln(fmt.Sprintf("Scanner found %d new games", result.NewCount))
	s.report.Writeln(fmt.Sprintf("Removed %d dead games", result.DeadCount))
	log.Infof("Scan of %q finished: %d new, %d dead, %d total", source, result.NewCount, result.DeadCount, result.Total)
	return result, nil
}
