package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	MainChain          = "main"
	unknownChainPrefix = "branch_unknown_"
)

var whitespace = regexp.MustCompile(`\s+`)

// Chain is one source-to-leaf path, source excluded, under its branch name.
type Chain struct {
	Name   string  `json:"name"`
	Stages []Stage `json:"stages"`
}

// ChainSet is the ordered result of chain extraction. Order follows
// the depth-first leaf order of the tree.
type ChainSet struct {
	chains []Chain
	index  map[string]int
}

// Names returns chain names in extraction order.
func (s *ChainSet) Names() []string {
	out := make([]string, len(s.chains))
	for i, c := range s.chains {
		out[i] = c.Name
	}
	return out
}

// Get returns the stages of the named chain.
func (s *ChainSet) Get(name string) ([]Stage, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.chains[i].Stages, true
}

// Chains returns every chain in extraction order.
func (s *ChainSet) Chains() []Chain {
	out := make([]Chain, len(s.chains))
	copy(out, s.chains)
	return out
}

// Len returns the number of chains.
func (s *ChainSet) Len() int {
	return len(s.chains)
}

// Map returns the chains keyed by name.
func (s *ChainSet) Map() map[string][]Stage {
	out := make(map[string][]Stage, len(s.chains))
	for _, c := range s.chains {
		out[c.Name] = c.Stages
	}
	return out
}

// Custom returns a copy of the set without the main chain.
func (s *ChainSet) Custom() *ChainSet {
	out := &ChainSet{index: make(map[string]int)}
	for _, c := range s.chains {
		if c.Name == MainChain {
			continue
		}
		out.put(c)
	}
	return out
}

func (s *ChainSet) put(c Chain) {
	s.index[c.Name] = len(s.chains)
	s.chains = append(s.chains, c)
}

// NormalizeLabel turns label text into a chain key: "BRANCH 1" → "branch_1".
func NormalizeLabel(text string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "_")
}

// ExtractChains enumerates every path from the source node to a leaf and
// names it. A path whose leaf is locked is "main"; otherwise the path is
// named after the nearest labelled node found walking back from the
// leaf. Each path is keyed exactly once: an unlabelled path, or one whose
// name is already taken, falls back to a numbered branch_unknown_<n> key.
func ExtractChains(g *Graph, labels []Label) *ChainSet {
	byNode := make(map[string]string, len(labels))
	for _, l := range labels {
		byNode[l.NodeID] = l.Text
	}

	var paths [][]Stage
	var dfs func(id string, path []Stage, depth int)
	dfs = func(id string, path []Stage, depth int) {
		if depth > len(g.nodes) {
			return
		}
		if id != g.sourceID {
			next := make([]Stage, len(path), len(path)+1)
			copy(next, path)
			path = append(next, stageOf(g.nodes[id]))
		}
		children := g.children[id]
		if len(children) == 0 {
			if len(path) > 0 {
				paths = append(paths, path)
			}
			return
		}
		for _, c := range children {
			dfs(c, path, depth+1)
		}
	}
	dfs(g.sourceID, nil, 0)

	set := &ChainSet{index: make(map[string]int)}
	fallback := 1
	nextUnknown := func() string {
		for {
			name := fmt.Sprintf("%s%d", unknownChainPrefix, fallback)
			fallback++
			if _, taken := set.index[name]; !taken {
				return name
			}
		}
	}

	for _, path := range paths {
		name := chainName(path, byNode)
		if name == "" {
			name = nextUnknown()
		} else if _, taken := set.index[name]; taken {
			name = nextUnknown()
		}
		set.put(Chain{Name: name, Stages: path})
	}
	return set
}

func chainName(path []Stage, labels map[string]string) string {
	if path[len(path)-1].Locked {
		return MainChain
	}
	for i := len(path) - 1; i >= 0; i-- {
		if text, ok := labels[path[i].ID]; ok {
			return NormalizeLabel(text)
		}
	}
	return ""
}
