// Package resolve merges raw entity mentions into canonical entities.
// It owns the alias index, the entity store, the fuzzy match scoring and the
// manual-review queue for merges that must not happen automatically.
package resolve

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/archivegraph/dossier/core/canon"
	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
)

// ErrEmptyMention indicates a mention with no usable text
var ErrEmptyMention = errors.New("mention text is empty")

// GraphRepointer lets a merge move co-occurrence edges from the losing
// entity to the winner. Implemented by the co-occurrence graph.
type GraphRepointer interface {
	RepointEntity(loser, winner uuid.UUID) []model.EdgeRemoval
}

// Resolver decides which canonical entity a raw mention belongs to.
// Resolution and merge writes are serialized by one mutex since merges
// mutate shared alias and graph state; read-only lookups go straight to the
// store and index, which have their own read locks.
type Resolver struct {
	mu      sync.Mutex
	config  model.ResolverConfig
	store   *EntityStore
	aliases *AliasIndex
	graph   GraphRepointer
	review  *ReviewQueue
	log     *slog.Logger
}

// NewResolver creates a resolver over the given store and alias index
func NewResolver(store *EntityStore, aliases *AliasIndex, config model.ResolverConfig, logger *slog.Logger) *Resolver {
	return &Resolver{
		config:  config,
		store:   store,
		aliases: aliases,
		review:  NewReviewQueue(),
		log:     logger,
	}
}

// SetGraph wires the co-occurrence graph so merges can repoint edges
func (r *Resolver) SetGraph(graph GraphRepointer) {
	r.graph = graph
}

// Store returns the underlying entity store
func (r *Resolver) Store() *EntityStore {
	return r.store
}

// Aliases returns the underlying alias index
func (r *Resolver) Aliases() *AliasIndex {
	return r.aliases
}

// candidate is one fuzzy-match candidate entity with its best alias score
type candidate struct {
	entityID uuid.UUID
	score    float64
}

// ResolveMention resolves one raw mention to an entity ID. A mention is
// never dropped: ambiguous input still yields an entity (new or existing)
// with a confidence the caller can filter on. Every resolution is recorded
// in the store's audit log with the rule that fired.
func (r *Resolver) ResolveMention(mention model.Mention) (model.Resolution, error) {
	key := canon.Canonicalize(mention.RawText)
	if key == "" {
		return model.Resolution{}, helper.NewError("resolve mention", fmt.Errorf("%w: %q", ErrEmptyMention, mention.RawText))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// O(1) fast path: known alias. A new display form sharing the key, like
	// "Jeffrey Epstein" after "Epstein, Jeffrey", is still a surface form the
	// entity must remember.
	if entityID, ok := r.aliases.Resolve(mention.RawText); ok {
		if entity, err := r.store.Get(entityID); err == nil {
			entity.AddAlias(mention.RawText)
			entity.AddSource(mention.SourceType)
		}
		return r.record(mention, entityID, 1.0, model.RuleExactAlias), nil
	}

	best, second := r.scoreCandidates(key)

	switch {
	case best.score >= r.config.MergeThreshold && second.score < r.config.MergeThreshold-r.config.Margin:
		// One candidate clears the threshold by a clear margin
		entity, err := r.store.Get(best.entityID)
		if err != nil {
			return model.Resolution{}, err
		}

		var reviewReason string
		if best.score < r.config.AutoMergeStrict {
			switch {
			case key.LowInfo():
				reviewReason = fmt.Sprintf("single-token mention is low-information (%.2f < %.2f)", best.score, r.config.AutoMergeStrict)
			case r.crossSource(entity, mention):
				reviewReason = fmt.Sprintf("cross-source merge below strict threshold (%.2f < %.2f)", best.score, r.config.AutoMergeStrict)
			}
		}

		if reviewReason != "" {
			// Risky merges go to review; the mention still resolves, to a
			// provisional entity.
			provisional := r.createEntity(mention)
			r.review.Push(&model.MergeCandidate{
				ID:        uuid.New(),
				WinnerID:  entity.ID,
				LoserID:   provisional.ID,
				Alias:     mention.RawText,
				Score:     best.score,
				Reason:    reviewReason,
				CreatedAt: time.Now(),
			})
			r.log.Info("Queued merge for review",
				slog.String("alias", mention.RawText),
				slog.String("candidate", entity.CanonicalName),
				slog.Float64("score", best.score))
			return r.record(mention, provisional.ID, best.score, model.RuleReviewQueued), nil
		}

		if err := r.absorbAlias(entity, mention); err != nil {
			return model.Resolution{}, err
		}
		return r.record(mention, entity.ID, best.score, model.RuleFuzzyMerge), nil

	case best.score >= r.config.MergeThreshold:
		// Multiple candidates tied within the margin: provisional new
		// entity plus a review item against the best candidate.
		provisional := r.createEntity(mention)
		r.review.Push(&model.MergeCandidate{
			ID:        uuid.New(),
			WinnerID:  best.entityID,
			LoserID:   provisional.ID,
			Alias:     mention.RawText,
			Score:     best.score,
			Reason:    fmt.Sprintf("ambiguous match: runner-up at %.2f within margin %.2f", second.score, r.config.Margin),
			CreatedAt: time.Now(),
		})
		r.log.Info("Ambiguous mention, created provisional entity",
			slog.String("raw_text", mention.RawText),
			slog.Float64("best", best.score),
			slog.Float64("second", second.score))
		return r.record(mention, provisional.ID, 1-r.config.AmbiguityPenalty, model.RuleAmbiguousNew), nil

	default:
		// No candidate cleared the threshold: same discounted confidence as
		// the ambiguous case, the mention may still be a missed match
		entity := r.createEntity(mention)
		return r.record(mention, entity.ID, 1-r.config.AmbiguityPenalty, model.RuleNewEntity), nil
	}
}

// scoreCandidates fuzzy-scores the mention key against every alias in the
// same first-letter bucket and returns the best and second-best entity.
// Scoring per entity keeps the max over that entity's aliases. Abbreviated
// aliases are skipped: "j epstein" would match every "J* Epstein" at full
// score once initials expand, so such aliases only serve exact lookup.
func (r *Resolver) scoreCandidates(key canon.Key) (best, second candidate) {
	bucket := firstRune(key)
	perEntity := map[uuid.UUID]float64{}

	for aliasKey, entityID := range r.aliases.Keys() {
		if firstRune(aliasKey) != bucket || aliasKey.Abbreviated() {
			continue
		}
		score := MatchScore(key, aliasKey, r.config)
		if score > perEntity[entityID] {
			perEntity[entityID] = score
		}
	}

	candidates := make([]candidate, 0, len(perEntity))
	for id, score := range perEntity {
		candidates = append(candidates, candidate{entityID: id, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		// Deterministic order for equal scores
		return candidates[i].entityID.String() < candidates[j].entityID.String()
	})

	if len(candidates) > 0 {
		best = candidates[0]
	}
	if len(candidates) > 1 {
		second = candidates[1]
	}
	return best, second
}

func firstRune(key canon.Key) rune {
	for _, r := range string(key) {
		return r
	}
	return 0
}

// crossSource reports whether absorbing the mention would cross provenance
// boundaries on an entity that already has multiple sources
func (r *Resolver) crossSource(entity *model.Entity, mention model.Mention) bool {
	if mention.SourceType == "" || entity.HasSource(mention.SourceType) {
		return false
	}
	return len(entity.Sources) >= r.config.MultiSourceMinimum
}

// absorbAlias adds the mention's surface form and source to an existing
// entity and registers the alias
func (r *Resolver) absorbAlias(entity *model.Entity, mention model.Mention) error {
	if err := r.aliases.Register(mention.RawText, entity.ID); err != nil {
		return err
	}
	entity.AddAlias(mention.RawText)
	entity.AddSource(mention.SourceType)
	return nil
}

// createEntity makes a new entity from the mention and registers its alias.
// Callers hold the resolver lock.
func (r *Resolver) createEntity(mention model.Mention) *model.Entity {
	entity := model.NewEntity(mention.RawText, mention.SourceType)
	r.store.Put(entity)
	// Cannot conflict: the exact-match path would have caught a known alias
	if err := r.aliases.Register(mention.RawText, entity.ID); err != nil {
		r.log.Error("Alias registration failed for new entity", slog.String("alias", mention.RawText), slog.Any("error", err))
	}
	return entity
}

// record appends a resolution to the audit log and returns it
func (r *Resolver) record(mention model.Mention, entityID uuid.UUID, confidence float64, rule model.MatchRule) model.Resolution {
	resolution := model.Resolution{
		RawText:    mention.RawText,
		SourceID:   mention.SourceID,
		EntityID:   entityID,
		Confidence: confidence,
		Rule:       rule,
		ResolvedAt: time.Now(),
	}
	r.store.RecordResolution(resolution)
	return resolution
}

// Merge absorbs the losing entity into the winner: alias union, source
// union, merge-history append, attribute union (winner wins on conflict,
// conflicts are logged), alias index repoint, graph edge repoint with
// self-loop removal. All changes are computed on a staged copy first so the
// merge is all-or-nothing; the winning entity is only replaced once nothing
// can fail anymore.
func (r *Resolver) Merge(winnerID, loserID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mergeLocked(winnerID, loserID)
}

func (r *Resolver) mergeLocked(winnerID, loserID uuid.UUID) error {
	winner, err := r.store.Get(winnerID)
	if err != nil {
		return helper.NewError("merge winner lookup", err)
	}
	loser, err := r.store.Get(loserID)
	if err != nil {
		return helper.NewError("merge loser lookup", err)
	}
	if winner.ID == loser.ID {
		return nil
	}

	// Stage the merged entity; the live winner is untouched until commit
	staged := winner.Clone()
	for _, alias := range loser.Aliases {
		staged.AddAlias(alias)
	}
	for _, source := range loser.Sources {
		staged.AddSource(source)
	}
	staged.MergeHistory = append(staged.MergeHistory, loser.MergeHistory...)
	staged.MergeHistory = append(staged.MergeHistory, model.MergeRecord{
		AbsorbedID:   loser.ID,
		AbsorbedName: loser.CanonicalName,
		MergedAt:     time.Now(),
	})
	for key, value := range loser.Attributes {
		if existing, ok := staged.Attributes[key]; ok {
			r.log.Warn("Attribute conflict during merge, keeping winner's value",
				slog.String("attribute", key),
				slog.String("winner", winner.CanonicalName),
				slog.Any("kept", existing),
				slog.Any("discarded", value))
			continue
		}
		staged.Attributes[key] = value
	}

	// Commit: nothing below can fail
	r.store.Put(staged)
	r.store.Forward(loser.ID, winner.ID)
	r.aliases.Repoint(loser.ID, winner.ID)

	if r.graph != nil {
		removals := r.graph.RepointEntity(loser.ID, winner.ID)
		for _, removal := range removals {
			r.log.Info("Dropped self-loop edge during merge",
				slog.String("entity", winner.CanonicalName),
				slog.Int("count", removal.Edge.Count),
				slog.String("reason", removal.Reason))
		}
	}

	r.log.Info("Merged entities",
		slog.String("winner", winner.CanonicalName),
		slog.String("loser", loser.CanonicalName),
		slog.Int("aliases", len(staged.Aliases)))
	return nil
}

// PendingMerges lists the queued merge candidates awaiting adjudication
func (r *Resolver) PendingMerges() []*model.MergeCandidate {
	return r.review.Pending()
}

// ResolveCandidate applies a human decision to a queued merge candidate.
// DecisionMerge performs the merge; DecisionReject leaves both entities as
// they are. Either way the candidate leaves the queue.
func (r *Resolver) ResolveCandidate(candidateID uuid.UUID, decision model.MergeDecision) error {
	candidate, err := r.review.Take(candidateID)
	if err != nil {
		return err
	}

	if decision == model.DecisionMerge {
		return r.Merge(candidate.WinnerID, candidate.LoserID)
	}
	return nil
}
