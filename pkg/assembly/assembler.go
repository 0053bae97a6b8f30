// Package assembly implements P3: batching unassigned strategic titles,
// asking the model to form Event Families, validating the proposals, and
// persisting seed EFs with their title assignments.
package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/llm"
	"github.com/tessera-intel/tessera/pkg/models"
)

// Completer is the slice of the LLM client the assembler needs.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string, opts llm.Options) (llm.Result, error)
}

// TitleSource loads work and writes assignments.
type TitleSource interface {
	LoadUnassignedStrategic(ctx context.Context, limit int) ([]*models.Title, error)
	AssignToEventFamily(ctx context.Context, ids []string, efID string, confidence float64, rationale string) (int, error)
}

// EFSink persists seed Event Families.
type EFSink interface {
	Create(ctx context.Context, ef *models.EventFamily) error
}

// HintSource supplies connectivity pairs for the prompt.
type HintSource interface {
	PairsFor(ctx context.Context, ids []string) ([]models.ConnectivityPair, error)
}

// Framer generates framed narratives for a freshly assembled EF. It is
// best-effort from the assembler's point of view.
type Framer interface {
	FrameEvent(ctx context.Context, ef *models.EventFamily, titles []*models.Title) error
}

// Stats summarizes one assembly run.
type Stats struct {
	TitlesLoaded     int
	Batches          int
	BatchesAbandoned int
	FamiliesCreated  int
	TitlesAssigned   int
	ProposalsDropped int
}

// Assembler drives P3 runs.
type Assembler struct {
	cfg    config.AssemblyConfig
	titles TitleSource
	efs    EFSink
	hints  HintSource
	llm    Completer
	framer Framer
	logger *slog.Logger

	now func() time.Time
}

// New creates an Assembler. hints and framer may be nil.
func New(cfg config.AssemblyConfig, titles TitleSource, efs EFSink, hints HintSource,
	completer Completer, framer Framer, logger *slog.Logger) *Assembler {

	if titles == nil {
		panic("assembly.New: title source must not be nil")
	}
	if efs == nil {
		panic("assembly.New: EF sink must not be nil")
	}
	if completer == nil {
		panic("assembly.New: completer must not be nil")
	}
	if logger == nil {
		panic("assembly.New: logger must not be nil")
	}
	return &Assembler{
		cfg:    cfg,
		titles: titles,
		efs:    efs,
		hints:  hints,
		llm:    completer,
		framer: framer,
		logger: logger.With("component", "assembly"),
		now:    time.Now,
	}
}

// Run loads the backlog, partitions it into batches, and assembles Event
// Families batch by batch. A failed batch is abandoned; later batches still
// run.
func (a *Assembler) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	backlog, err := a.titles.LoadUnassignedStrategic(ctx, a.cfg.MaxTitles)
	if err != nil {
		return stats, fmt.Errorf("failed to load backlog: %w", err)
	}
	stats.TitlesLoaded = len(backlog)
	if len(backlog) == 0 {
		return stats, nil
	}

	batchSize := a.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	for start := 0; start < len(backlog); start += batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := start + batchSize
		if end > len(backlog) {
			end = len(backlog)
		}
		batch := backlog[start:end]
		stats.Batches++

		if err := a.assembleBatch(ctx, batch, &stats); err != nil {
			stats.BatchesAbandoned++
			a.logger.WarnContext(ctx, "batch abandoned",
				"batch_start", start, "titles", len(batch), "error", err)
		}
	}
	return stats, nil
}

func (a *Assembler) assembleBatch(ctx context.Context, batch []*models.Title, stats *Stats) error {
	ids := make([]string, len(batch))
	byID := make(map[string]*models.Title, len(batch))
	for i, t := range batch {
		ids[i] = t.ID
		byID[t.ID] = t
	}

	var hints []models.ConnectivityPair
	if a.hints != nil {
		var err error
		hints, err = a.hints.PairsFor(ctx, ids)
		if err != nil {
			a.logger.WarnContext(ctx, "connectivity hints unavailable", "error", err)
		}
	}

	proposals, err := a.propose(ctx, batchPrompt(batch, hints))
	if err != nil {
		return err
	}

	assignedInBatch := make(map[string]bool)
	for _, p := range proposals {
		ef, memberIDs, reason := a.validate(p, byID, assignedInBatch)
		if ef == nil {
			stats.ProposalsDropped++
			a.logger.WarnContext(ctx, "proposal dropped", "title", p.Title, "reason", reason)
			continue
		}

		if err := a.efs.Create(ctx, ef); err != nil {
			return fmt.Errorf("failed to persist EF %q: %w", ef.Title, err)
		}
		n, err := a.titles.AssignToEventFamily(ctx, memberIDs, ef.ID, ef.Confidence, ef.CoherenceReason)
		if err != nil {
			return fmt.Errorf("failed to assign titles to EF %q: %w", ef.Title, err)
		}
		for _, id := range memberIDs {
			assignedInBatch[id] = true
		}
		stats.FamiliesCreated++
		stats.TitlesAssigned += n

		if a.framer != nil {
			members := make([]*models.Title, 0, len(memberIDs))
			for _, id := range memberIDs {
				members = append(members, byID[id])
			}
			if err := a.framer.FrameEvent(ctx, ef, members); err != nil {
				a.logger.WarnContext(ctx, "event framing failed", "ef_id", ef.ID, "error", err)
			}
		}
	}
	return nil
}

// proposal is the per-EF shape the assembly prompt requests.
type proposal struct {
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	KeyActors       []string `json:"key_actors"`
	EventType       string   `json:"event_type"`
	Geography       string   `json:"geography"`
	EventStart      string   `json:"event_start"`
	EventEnd        string   `json:"event_end"`
	SourceTitleIDs  []string `json:"source_title_ids"`
	Confidence      float64  `json:"confidence"`
	CoherenceReason string   `json:"coherence_reason"`
}

// propose calls the model, retrying once at low temperature on a parse
// failure. A schema failure or second parse failure abandons the batch.
func (a *Assembler) propose(ctx context.Context, userPrompt string) ([]proposal, error) {
	result, err := a.llm.CompleteJSON(ctx, systemPrompt, userPrompt, llm.Options{})
	if err != nil {
		return nil, err
	}
	if result.Retryable() {
		a.logger.WarnContext(ctx, "assembly response unparseable, retrying at low temperature")
		result, err = a.llm.CompleteJSON(ctx, systemPrompt, userPrompt,
			llm.Options{Temperature: llm.Temp(a.cfg.RetryTemperature)})
		if err != nil {
			return nil, err
		}
	}

	var proposals []proposal
	result = result.Decode(&proposals)
	if result.Outcome != llm.OutcomeOK {
		return nil, fmt.Errorf("assembly response unusable (%s): %w", result.Outcome, result.Err)
	}
	return proposals, nil
}

// validate turns a proposal into a persistable EF or rejects it with a
// reason. Titles already claimed by an earlier proposal in the same batch
// are removed from the member set.
func (a *Assembler) validate(p proposal, batch map[string]*models.Title,
	claimed map[string]bool) (*models.EventFamily, []string, string) {

	if p.Title == "" {
		return nil, nil, "missing title"
	}

	var members []string
	for _, id := range p.SourceTitleIDs {
		if _, ok := batch[id]; !ok {
			return nil, nil, fmt.Sprintf("source title %s outside batch", id)
		}
		if claimed[id] {
			continue
		}
		members = append(members, id)
	}
	if len(members) == 0 {
		return nil, nil, "no unclaimed source titles"
	}
	if len(members) == 1 && p.CoherenceReason == "" {
		return nil, nil, "single-title family without coherence_reason"
	}

	confidence := p.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	start := a.parseDate(p.EventStart)
	ef := &models.EventFamily{
		ID:              uuid.NewString(),
		Title:           p.Title,
		Summary:         p.Summary,
		KeyActors:       p.KeyActors,
		EventType:       p.EventType,
		PrimaryTheater:  p.Geography,
		EventStart:      start,
		SourceTitleIDs:  members,
		Confidence:      confidence,
		CoherenceReason: p.CoherenceReason,
		Status:          models.EFStatusSeed,
	}
	if p.EventEnd != "" {
		end := a.parseDate(p.EventEnd)
		if !end.Before(start) {
			ef.EventEnd = &end
		}
	}
	return ef, members, ""
}

// parseDate accepts ISO-8601 Zulu; anything unparseable defaults to now.
func (a *Assembler) parseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return a.now().UTC()
}
