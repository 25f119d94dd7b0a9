package invite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/tariel-x/gomeet/internal/dialout"
	"github.com/tariel-x/gomeet/internal/models"
)

// DirectorySearcher looks people and rooms up in a directory.
type DirectorySearcher interface {
	Search(ctx context.Context, text string, types []string) (models.CandidateList, error)
}

// NumberChecker validates a normalized phone number for dial-out.
type NumberChecker interface {
	CheckNumber(ctx context.Context, digits string) (dialout.CheckResult, error)
}

// Aggregator merges a directory lookup and a dial-out validity check into
// one candidate list. The two lookups run concurrently. A failing directory
// degrades to an empty result, but a failing dial-out check fails the whole
// search: silently dropping a number the user typed would read as "cannot
// be called".
type Aggregator struct {
	directory        DirectorySearcher
	numbers          NumberChecker
	queryTypes       []string
	directoryEnabled bool
	dialOutEnabled   bool
	log              *slog.Logger
}

type AggregatorConfig struct {
	Directory        DirectorySearcher
	Numbers          NumberChecker
	QueryTypes       []string
	DirectoryEnabled bool
	DialOutEnabled   bool
	Logger           *slog.Logger
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		directory:        cfg.Directory,
		numbers:          cfg.Numbers,
		queryTypes:       cfg.QueryTypes,
		directoryEnabled: cfg.DirectoryEnabled,
		dialOutEnabled:   cfg.DialOutEnabled,
		log:              log,
	}
}

// Search resolves what the user typed into invite candidates. Directory
// matches come back as they are; if the text also has the shape of a phone
// number and dial-out is enabled, a phone candidate is synthesized from the
// validation answer, unless the directory already returned one.
func (a *Aggregator) Search(ctx context.Context, query string) (models.CandidateList, error) {
	text := strings.TrimSpace(query)

	var (
		people  models.CandidateList
		check   dialout.CheckResult
		checked bool
	)

	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		if !a.directoryEnabled || a.directory == nil {
			return nil
		}
		found, err := a.directory.Search(ctx, text, a.queryTypes)
		if err != nil {
			// Directory trouble must not sink the whole lookup.
			a.log.Warn("directory search failed", "query", text, "error", err)
			return nil
		}
		people = found
		return nil
	})
	p.Go(func(ctx context.Context) error {
		if !a.dialOutEnabled || a.numbers == nil || !dialout.LooksLikePhoneNumber(text) {
			return nil
		}
		result, err := a.numbers.CheckNumber(ctx, dialout.NormalizeNumber(text))
		if err != nil {
			return fmt.Errorf("check dial number: %w", err)
		}
		check = result
		checked = true
		return nil
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	results := people
	if checked && !results.HasType(models.CandidateTypePhone) {
		results = append(results, models.Phone{
			Number:                  check.Phone,
			Allowed:                 check.Allow,
			Country:                 check.Country,
			OriginalEntry:           text,
			ShowCountryCodeReminder: !strings.HasPrefix(text, "+"),
		})
	}
	return results, nil
}
