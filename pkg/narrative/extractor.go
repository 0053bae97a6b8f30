// Package narrative implements two-pass framing over the titles of an
// Event Family, CTM, or epic: frame discovery over a stratified sample,
// batched classification for epic-scale entities, and aggregated source
// attribution persisted as an atomic frame refresh.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/llm"
	"github.com/tessera-intel/tessera/pkg/models"
)

// ErrInsufficientTitles is returned when an entity has too few titles for
// a meaningful extraction.
var ErrInsufficientTitles = errors.New("not enough titles for narrative extraction")

// Completer is the slice of the LLM client the extractor needs.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string, opts llm.Options) (llm.Result, error)
}

// FrameSink persists extracted frames.
type FrameSink interface {
	ReplaceFrames(ctx context.Context, entityType models.NarrativeEntityType,
		entityID string, frames []models.NarrativeFrame) error
}

// Extractor runs frame extraction for all three entity scales.
type Extractor struct {
	cfg    config.NarrativeConfig
	llm    Completer
	frames FrameSink
	logger *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg config.NarrativeConfig, completer Completer, frames FrameSink,
	logger *slog.Logger) *Extractor {

	if completer == nil {
		panic("narrative.NewExtractor: completer must not be nil")
	}
	if frames == nil {
		panic("narrative.NewExtractor: frame sink must not be nil")
	}
	if logger == nil {
		panic("narrative.NewExtractor: logger must not be nil")
	}
	return &Extractor{cfg: cfg, llm: completer, frames: frames,
		logger: logger.With("component", "narrative")}
}

// FrameEvent extracts and persists frames for one Event Family.
func (e *Extractor) FrameEvent(ctx context.Context, ef *models.EventFamily,
	titles []*models.Title) error {

	if len(titles) < e.cfg.EventMinTitles {
		return fmt.Errorf("%w: event %s has %d titles, need %d",
			ErrInsufficientTitles, ef.ID, len(titles), e.cfg.EventMinTitles)
	}

	context := "Event: " + ef.Title
	if ef.Summary != "" {
		context += "\nSummary: " + ef.Summary
	}
	discovered, err := e.discover(ctx, models.NarrativeEntityEvent, context, titles)
	if err != nil {
		return err
	}

	frames := e.buildFrames(models.NarrativeEntityEvent, ef.ID, discovered, titles)
	return e.frames.ReplaceFrames(ctx, models.NarrativeEntityEvent, ef.ID, frames)
}

// FrameCTM extracts and persists frames for one CTM bucket over its member
// titles, sampled language-stratified.
func (e *Extractor) FrameCTM(ctx context.Context, ctm *models.CTM,
	titles []*models.Title) error {

	if len(titles) < e.cfg.CTMMinTitles {
		return fmt.Errorf("%w: ctm %s/%s has %d titles, need %d",
			ErrInsufficientTitles, ctm.CentroidID, ctm.Track, len(titles), e.cfg.CTMMinTitles)
	}

	sample := SampleCTM(titles, e.cfg.CTMSampleSize)
	context := fmt.Sprintf("Strategic storyline %s, track %s, month %s.",
		ctm.CentroidID, ctm.Track, ctm.Month.Format("2006-01"))
	discovered, err := e.discover(ctx, models.NarrativeEntityCTM, context, sample)
	if err != nil {
		return err
	}

	entityID := fmt.Sprintf("%s/%s/%s", ctm.CentroidID, ctm.Track, ctm.Month.Format("2006-01"))
	frames := e.buildFrames(models.NarrativeEntityCTM, entityID, discovered, sample)
	return e.frames.ReplaceFrames(ctx, models.NarrativeEntityCTM, entityID, frames)
}

// FrameEpic extracts frames for an epic: discovery over a
// centroid-proportional sample, then classification of every title in
// publisher-sorted batches.
func (e *Extractor) FrameEpic(ctx context.Context, epic *models.Epic,
	titles []*models.Title, centroidOf map[string]string) error {

	if len(titles) < e.cfg.CTMMinTitles {
		return fmt.Errorf("%w: epic %s has %d titles, need %d",
			ErrInsufficientTitles, epic.Label, len(titles), e.cfg.CTMMinTitles)
	}

	sample := SampleEpic(titles, centroidOf, e.cfg.EpicSampleSize)
	context := "Cross-cutting theme: " + epic.Label
	discovered, err := e.discover(ctx, models.NarrativeEntityEpic, context, sample)
	if err != nil {
		return err
	}
	if len(discovered) == 0 {
		return e.frames.ReplaceFrames(ctx, models.NarrativeEntityEpic, epic.ID, nil)
	}

	assignment, err := e.classifyAll(ctx, discovered, titles)
	if err != nil {
		return err
	}

	var classified []*models.Title
	byLabel := make(map[string][]*models.Title)
	for _, t := range titles {
		label := assignment[t.ID]
		if label == "" || label == "neutral" {
			continue
		}
		classified = append(classified, t)
		byLabel[label] = append(byLabel[label], t)
	}

	frames := make([]models.NarrativeFrame, 0, len(discovered))
	for _, d := range discovered {
		frame := models.NarrativeFrame{
			EntityType:  models.NarrativeEntityEpic,
			EntityID:    epic.ID,
			Label:       d.Label,
			Description: d.Description,
			MoralFrame:  d.MoralFrame,
		}
		aggregate(&frame, byLabel[d.Label], classified)
		frames = append(frames, frame)
	}
	return e.frames.ReplaceFrames(ctx, models.NarrativeEntityEpic, epic.ID, frames)
}

// discoveredFrame is the Pass-1 JSON shape.
type discoveredFrame struct {
	Label        string `json:"label"`
	Description  string `json:"description"`
	MoralFrame   string `json:"moral_frame"`
	TitleIndices []int  `json:"title_indices"`
}

func (e *Extractor) discover(ctx context.Context, entityType models.NarrativeEntityType,
	contextText string, sample []*models.Title) ([]discoveredFrame, error) {

	result, err := e.llm.CompleteJSON(ctx, discoverySystemPrompt(entityType),
		discoveryPrompt(contextText, sample), llm.Options{})
	if err != nil {
		return nil, err
	}

	var discovered []discoveredFrame
	result = result.Decode(&discovered)
	if result.Outcome != llm.OutcomeOK {
		return nil, fmt.Errorf("frame discovery unusable (%s): %w", result.Outcome, result.Err)
	}

	// Dedupe labels and drop frames with no valid indices.
	seen := make(map[string]bool)
	kept := discovered[:0]
	for _, d := range discovered {
		if d.Label == "" || seen[d.Label] {
			continue
		}
		valid := d.TitleIndices[:0]
		for _, idx := range d.TitleIndices {
			if idx >= 0 && idx < len(sample) {
				valid = append(valid, idx)
			}
		}
		d.TitleIndices = valid
		if len(valid) == 0 {
			continue
		}
		seen[d.Label] = true
		kept = append(kept, d)
	}
	return kept, nil
}

// buildFrames aggregates Pass-1 index assignments directly (event and CTM
// scale; no Pass 2).
func (e *Extractor) buildFrames(entityType models.NarrativeEntityType, entityID string,
	discovered []discoveredFrame, sample []*models.Title) []models.NarrativeFrame {

	var classified []*models.Title
	claimed := make(map[int]bool)
	byLabel := make(map[string][]*models.Title)
	for _, d := range discovered {
		for _, idx := range d.TitleIndices {
			byLabel[d.Label] = append(byLabel[d.Label], sample[idx])
			if !claimed[idx] {
				claimed[idx] = true
				classified = append(classified, sample[idx])
			}
		}
	}

	frames := make([]models.NarrativeFrame, 0, len(discovered))
	for _, d := range discovered {
		frame := models.NarrativeFrame{
			EntityType:  entityType,
			EntityID:    entityID,
			Label:       d.Label,
			Description: d.Description,
			MoralFrame:  d.MoralFrame,
		}
		aggregate(&frame, byLabel[d.Label], classified)
		frames = append(frames, frame)
	}
	return frames
}

// classification is the Pass-2 JSON shape.
type classification struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// classifyAll assigns every title to a discovered label (or neutral) in
// publisher-sorted batches. A failed batch leaves its titles unclassified.
func (e *Extractor) classifyAll(ctx context.Context, discovered []discoveredFrame,
	titles []*models.Title) (map[string]string, error) {

	labels := make([]string, len(discovered))
	labelSet := make(map[string]bool, len(discovered))
	for i, d := range discovered {
		labels[i] = d.Label
		labelSet[d.Label] = true
	}

	ordered := make([]*models.Title, len(titles))
	copy(ordered, titles)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Publisher < ordered[j].Publisher
	})

	batchSize := e.cfg.ClassifyBatchSize
	if batchSize <= 0 {
		batchSize = 60
	}

	assignment := make(map[string]string, len(ordered))
	for start := 0; start < len(ordered); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		batch := ordered[start:end]

		result, err := e.llm.CompleteJSON(ctx, classifySystemPrompt,
			classifyPrompt(labels, batch, start), llm.Options{})
		if err != nil {
			e.logger.WarnContext(ctx, "classification batch failed",
				"batch_start", start, "error", err)
			continue
		}
		var assigned []classification
		result = result.Decode(&assigned)
		if result.Outcome != llm.OutcomeOK {
			e.logger.WarnContext(ctx, "classification batch unusable",
				"batch_start", start, "outcome", result.Outcome)
			continue
		}

		for _, a := range assigned {
			local := a.Index - start
			if local < 0 || local >= len(batch) {
				continue
			}
			if a.Label == "neutral" || labelSet[a.Label] {
				assignment[batch[local].ID] = a.Label
			}
		}
	}
	return assignment, nil
}
