// Package dupes finds open tabs that show the same content and closes the
// extras.
package dupes

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"tabfold-mcp-server/internal/reconcile"
)

// DefaultThreshold is the similarity at which two tabs count as duplicates.
const DefaultThreshold = 0.82

// Item is one tab as seen by a detector.
type Item struct {
	TabID string `json:"tab_id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
}

// Cluster is a set of tabs judged to be duplicates. Keep is the tab that
// should survive; it is always IDs[0].
type Cluster struct {
	IDs      []string `json:"ids"`
	Keep     string   `json:"keep"`
	AvgScore float64  `json:"avg_score"`
}

// Closing returns the ids that CloseDuplicates would remove.
func (c Cluster) Closing() []string {
	out := make([]string, 0, len(c.IDs))
	for _, id := range c.IDs {
		if id != c.Keep {
			out = append(out, id)
		}
	}
	return out
}

// Detector groups similar items. Only clusters of two or more are returned.
type Detector interface {
	Detect(items []Item, threshold float64) []Cluster
}

// JaccardDetector compares word sets built from title and page text.
// Tabs sharing a normalized URL are always duplicates.
type JaccardDetector struct {
	// MinTokens skips content comparison for items with fewer words.
	MinTokens int
}

type prepared struct {
	item   Item
	key    string
	tokens map[string]struct{}
}

// Detect clusters greedily in input order: the first unassigned item seeds a
// cluster and absorbs every later unassigned item similar enough to it.
func (d JaccardDetector) Detect(items []Item, threshold float64) []Cluster {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}

	prep := make([]prepared, len(items))
	for i, it := range items {
		prep[i] = prepared{
			item:   it,
			key:    reconcile.Normalize(it.URL),
			tokens: Tokens(it.Title + " " + it.Text),
		}
	}

	assigned := make([]bool, len(prep))
	var clusters []Cluster
	for i := range prep {
		if assigned[i] {
			continue
		}
		seed := prep[i]
		ids := []string{seed.item.TabID}
		total := 0.0

		for j := i + 1; j < len(prep); j++ {
			if assigned[j] {
				continue
			}
			score := d.similarity(seed, prep[j])
			if score >= threshold {
				assigned[j] = true
				ids = append(ids, prep[j].item.TabID)
				total += score
			}
		}

		if len(ids) > 1 {
			assigned[i] = true
			clusters = append(clusters, Cluster{
				IDs:      ids,
				Keep:     ids[0],
				AvgScore: total / float64(len(ids)-1),
			})
		}
	}
	return clusters
}

func (d JaccardDetector) similarity(a, b prepared) float64 {
	if a.key != "" && a.key == b.key {
		return 1
	}
	if len(a.tokens) < d.MinTokens || len(b.tokens) < d.MinTokens {
		return 0
	}
	return Jaccard(a.tokens, b.tokens)
}

// Tokens lower-cases s and splits it into a set of words of two or more
// letters or digits.
func Tokens(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// Jaccard is |a ∩ b| / |a ∪ b|. Two empty sets score 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// TabLister lists the live tabs.
type TabLister interface {
	ListTabs(ctx context.Context) ([]reconcile.LiveTab, error)
}

// TextSource returns the visible text of a tab.
type TextSource interface {
	TabText(ctx context.Context, tabID string) (string, error)
}

// Collect snapshots the tabs and reads their text. Text failures are logged
// and leave the item with title and URL only.
func Collect(ctx context.Context, tabs TabLister, texts TextSource) ([]Item, error) {
	live, err := tabs.ListTabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	items := make([]Item, 0, len(live))
	for _, t := range live {
		it := Item{TabID: t.ID, Title: t.Title, URL: t.URL}
		if texts != nil {
			text, err := texts.TabText(ctx, t.ID)
			if err != nil {
				log.Printf("warning: could not read text of tab %s: %v", t.ID, err)
			} else {
				it.Text = text
			}
		}
		items = append(items, it)
	}
	return items, nil
}

// TabCloser closes tabs by id.
type TabCloser interface {
	CloseTabs(ctx context.Context, ids []string) error
}

// ErrNothingToClose is returned when every id given is the one being kept.
var ErrNothingToClose = errors.New("no other tabs to close")

// CloseDuplicates closes ids except keep and returns what was closed.
func CloseDuplicates(ctx context.Context, closer TabCloser, keep string, ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	toClose := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == keep || seen[id] {
			continue
		}
		seen[id] = true
		toClose = append(toClose, id)
	}
	if len(toClose) == 0 {
		return nil, ErrNothingToClose
	}
	if err := closer.CloseTabs(ctx, toClose); err != nil {
		return nil, fmt.Errorf("close %d tabs: %w", len(toClose), err)
	}
	log.Printf("Closed %d duplicate tab(s), kept %s", len(toClose), keep)
	return toClose, nil
}

// ClosePreview is the confirmation shown before closing n duplicates of keep.
func ClosePreview(n int, keep Item) string {
	suffix := "s"
	if n == 1 {
		suffix = ""
	}
	return fmt.Sprintf("Close %d tab%s and keep tab %s?", n, suffix, Label(keep))
}

// Label names a tab for humans: its quoted title, else its URL, else its id.
func Label(it Item) string {
	if it.Title != "" {
		return fmt.Sprintf("%q", it.Title)
	}
	if it.URL != "" {
		return it.URL
	}
	return it.TabID
}
