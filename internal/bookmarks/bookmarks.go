// Package bookmarks reads bookmark folders from a Chrome profile or a YAML
// file and turns them into reconcile target sets.
package bookmarks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tabfold-mcp-server/internal/reconcile"
)

// chromeNode mirrors one entry of Chrome's Bookmarks file.
type chromeNode struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	URL      string       `json:"url"`
	Children []chromeNode `json:"children"`
}

type chromeFile struct {
	Roots map[string]chromeNode `json:"roots"`
}

// rootOrder is the order Chrome shows its roots in.
var rootOrder = []string{"bookmark_bar", "other", "synced"}

// Load picks the parser by extension: .yaml and .yml are folder lists,
// anything else is a Chrome Bookmarks file.
func Load(path string) ([]reconcile.TargetSet, error) {
	if path == "" {
		return nil, fmt.Errorf("bookmarks source is required")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	default:
		return LoadChrome(path)
	}
}

// LoadChrome reads a Chrome profile Bookmarks file.
func LoadChrome(path string) ([]reconcile.TargetSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bookmarks: %w", err)
	}
	return ParseChrome(raw)
}

// ParseChrome walks the roots depth first. Every folder with at least one
// direct link becomes a target set, listed before its subfolders.
func ParseChrome(raw []byte) ([]reconcile.TargetSet, error) {
	var file chromeFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse bookmarks: %w", err)
	}

	var out []reconcile.TargetSet
	for _, name := range orderedRoots(file.Roots) {
		root := file.Roots[name]
		walk(root, &out)
	}
	return out, nil
}

func orderedRoots(roots map[string]chromeNode) []string {
	known := make(map[string]bool, len(rootOrder))
	var names []string
	for _, name := range rootOrder {
		known[name] = true
		if _, ok := roots[name]; ok {
			names = append(names, name)
		}
	}
	var extra []string
	for name := range roots {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func walk(node chromeNode, out *[]reconcile.TargetSet) {
	if node.Type != "" && node.Type != "folder" {
		return
	}

	var links []reconcile.Link
	for _, c := range node.Children {
		if c.URL == "" {
			continue
		}
		title := c.Name
		if title == "" {
			title = c.URL
		}
		links = append(links, reconcile.Link{ID: c.ID, Title: title, URL: c.URL})
	}
	if len(links) > 0 {
		*out = append(*out, reconcile.TargetSet{ID: node.ID, Title: node.Name, Links: links})
	}

	for _, c := range node.Children {
		if c.URL == "" && (c.Type == "folder" || len(c.Children) > 0) {
			walk(c, out)
		}
	}
}

// yamlFile is the hand-written folder list format:
//
//	folders:
//	  - title: Reading
//	    links:
//	      - url: https://example.com/a
type yamlFile struct {
	Folders []reconcile.TargetSet `yaml:"folders"`
}

// LoadYAML reads a folder list. Folders without an id get "folder-N" from
// their position; links without a title use their URL.
func LoadYAML(path string) ([]reconcile.TargetSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read folders: %w", err)
	}
	return ParseYAML(raw)
}

// ParseYAML decodes the folder list format.
func ParseYAML(raw []byte) ([]reconcile.TargetSet, error) {
	var file yamlFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse folders: %w", err)
	}

	seen := make(map[string]bool, len(file.Folders))
	for i := range file.Folders {
		f := &file.Folders[i]
		if f.ID == "" {
			f.ID = "folder-" + strconv.Itoa(i+1)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("parse folders: duplicate folder id %q", f.ID)
		}
		seen[f.ID] = true
		for j := range f.Links {
			l := &f.Links[j]
			if l.ID == "" {
				l.ID = f.ID + "-" + strconv.Itoa(j+1)
			}
			if l.Title == "" {
				l.Title = l.URL
			}
		}
	}
	return file.Folders, nil
}
