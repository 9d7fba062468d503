package ranking

import "strings"

// skillAliases maps common skill spellings to a canonical form so that
// "React.js" in a query matches "react" on a profile. Lookup happens after
// lowercasing and trimming.
var skillAliases = map[string]string{
	"react.js":            "react",
	"reactjs":             "react",
	"node.js":             "node",
	"nodejs":              "node",
	"golang":              "go",
	"k8s":                 "kubernetes",
	"postgres":            "postgresql",
	"ts":                  "typescript",
	"js":                  "javascript",
	"amazon web services": "aws",
	"gcp":                 "google cloud",
	"tf":                  "terraform",
	"py":                  "python",
	"c sharp":             "c#",
	"dotnet":              ".net",
	"ml":                  "machine learning",
	"ci/cd":               "cicd",
}

// NormalizeSkill canonicalizes a skill name for matching. It lowercases,
// trims, and resolves known aliases.
func NormalizeSkill(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := skillAliases[s]; ok {
		return canonical
	}
	return s
}

// skillSet is a normalized skill-name lookup.
type skillSet map[string]struct{}

func newSkillSet(names []string) skillSet {
	set := make(skillSet, len(names))
	for _, n := range names {
		norm := NormalizeSkill(n)
		if norm == "" {
			continue
		}
		set[norm] = struct{}{}
	}
	return set
}

func (s skillSet) contains(name string) bool {
	_, ok := s[NormalizeSkill(name)]
	return ok
}
